package intakeapi

import (
	"os"
	"strings"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/envconf"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake"
)

// Config controls intake API behavior and security defaults.
type Config struct {
	LinkTTL        time.Duration
	LinkMaxTTL     time.Duration
	LinkMaxUses    int
	LinkMaxUsesCap int

	TrustProxy   bool
	MaxBodyBytes int64

	PublicRateMax    int
	PublicRateWindow time.Duration

	// ShareURLBase, when set, is joined with the plain token to build the link handed to the
	// external party, e.g. https://portal.example.com/intake.
	ShareURLBase string

	// StaffTokens maps a staff name to its bearer token.
	StaffTokens map[string]string
}

// LoadConfigFromEnv loads intake API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		LinkTTL:          envconf.Duration("CENTRAQU_INTAKE_LINK_TTL", 7*24*time.Hour),
		LinkMaxTTL:       envconf.Duration("CENTRAQU_INTAKE_LINK_TTL_MAX", 30*24*time.Hour),
		LinkMaxUses:      envconf.Int("CENTRAQU_INTAKE_LINK_MAX_USES", 1),
		LinkMaxUsesCap:   envconf.Int("CENTRAQU_INTAKE_LINK_MAX_USES_CAP", 100),
		TrustProxy:       envconf.Bool("CENTRAQU_INTAKE_TRUST_PROXY", false),
		MaxBodyBytes:     envconf.Int64("CENTRAQU_INTAKE_MAX_BODY_BYTES", 1<<20), // 1 MiB
		PublicRateMax:    envconf.Int("CENTRAQU_INTAKE_PUBLIC_RATE_MAX", 30),
		PublicRateWindow: envconf.Duration("CENTRAQU_INTAKE_PUBLIC_RATE_WINDOW", time.Minute),
		ShareURLBase:     strings.TrimRight(strings.TrimSpace(os.Getenv("CENTRAQU_INTAKE_SHARE_URL_BASE")), "/"),
		StaffTokens:      parseStaffTokens(os.Getenv("CENTRAQU_STAFF_TOKENS")),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	def := intake.DefaultLimits()
	if c.LinkTTL <= 0 {
		c.LinkTTL = def.DefaultTTL
	}
	if c.LinkMaxTTL <= 0 {
		c.LinkMaxTTL = def.MaxTTL
	}
	if c.LinkTTL > c.LinkMaxTTL {
		c.LinkTTL = c.LinkMaxTTL
	}
	if c.LinkMaxUses <= 0 {
		c.LinkMaxUses = def.DefaultMaxUses
	}
	if c.LinkMaxUsesCap <= 0 {
		c.LinkMaxUsesCap = def.MaxUsesCap
	}
	if c.LinkMaxUses > c.LinkMaxUsesCap {
		c.LinkMaxUses = c.LinkMaxUsesCap
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.PublicRateWindow <= 0 {
		c.PublicRateWindow = time.Minute
	}
	return c
}

// Limits returns the link limits the intake service should enforce.
func (c Config) Limits() intake.Limits {
	c = c.normalized()
	return intake.Limits{
		DefaultTTL:     c.LinkTTL,
		MaxTTL:         c.LinkMaxTTL,
		DefaultMaxUses: c.LinkMaxUses,
		MaxUsesCap:     c.LinkMaxUsesCap,
	}
}

// minStaffTokenLen rejects guessable staff tokens at load time.
const minStaffTokenLen = 16

// parseStaffTokens reads "name:token,name:token". Malformed or short entries are dropped.
func parseStaffTokens(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		name, tok, ok := strings.Cut(strings.TrimSpace(pair), ":")
		name = strings.TrimSpace(name)
		tok = strings.TrimSpace(tok)
		if !ok || name == "" || len(tok) < minStaffTokenLen {
			continue
		}
		out[name] = tok
	}
	return out
}
