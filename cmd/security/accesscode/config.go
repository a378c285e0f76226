package accesscode

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Alphabet is the default generation alphabet: upper-case letters and digits minus 0, O, 1, I.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls code shape.
type Policy struct {
	// Length is the length of generated codes.
	Length int
	// MinLength and MaxLength bound accepted input after normalization.
	MinLength int
	MaxLength int
	Alphabet  string
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the production baseline.
// Codes are verified on every public validate call, so cost sits at the OWASP floor for
// Argon2id (19 MiB, t=2) rather than at interactive-login strength.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   19 * 1024,
			Iterations:  2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			Length:    8,
			MinLength: 6,
			MaxLength: 32,
			Alphabet:  Alphabet,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - CENTRAQU_ACCESS_CODE_LEN
// - CENTRAQU_ACCESS_CODE_ARGON2_MEMORY_KIB
// - CENTRAQU_ACCESS_CODE_ARGON2_ITERATIONS
// - CENTRAQU_ACCESS_CODE_ARGON2_PARALLELISM
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("CENTRAQU_ACCESS_CODE_LEN"); ok {
		n, err := atoiRange(v, 6, 32)
		if err != nil {
			return Config{}, fmt.Errorf("CENTRAQU_ACCESS_CODE_LEN: %w", err)
		}
		cfg.Policy.Length = n
	}

	if v, ok := os.LookupEnv("CENTRAQU_ACCESS_CODE_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 256*1024)
		if err != nil {
			return Config{}, fmt.Errorf("CENTRAQU_ACCESS_CODE_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("CENTRAQU_ACCESS_CODE_ARGON2_ITERATIONS"); ok {
		u, err := atou32(v, 1, 10)
		if err != nil {
			return Config{}, fmt.Errorf("CENTRAQU_ACCESS_CODE_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("CENTRAQU_ACCESS_CODE_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, 16)
		if err != nil {
			return Config{}, fmt.Errorf("CENTRAQU_ACCESS_CODE_ARGON2_PARALLELISM: %w", err)
		}
		if u > math.MaxUint8 {
			return Config{}, fmt.Errorf("CENTRAQU_ACCESS_CODE_ARGON2_PARALLELISM: out of range")
		}
		cfg.Params.Parallelism = uint8(u)
	}

	if cfg.Policy.Length < cfg.Policy.MinLength || cfg.Policy.Length > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("access code policy invalid: length %d outside [%d..%d]",
			cfg.Policy.Length, cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}

	return cfg, nil
}

func atoiRange(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
