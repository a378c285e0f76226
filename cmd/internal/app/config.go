package app

import (
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/envconf"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, CENTRAQU_TOKEN_HMAC_KEY must be set (>= 32 bytes) and link tokens are
	// hashed with HMAC-SHA256.
	RequireTokenHMAC bool

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  envconf.String("CENTRAQU_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  envconf.String("CENTRAQU_LOG_LEVEL", "info"),
		LogFormat: envconf.String("CENTRAQU_LOG_FORMAT", "json"),

		ReadHeaderTimeout: envconf.Duration("CENTRAQU_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       envconf.Duration("CENTRAQU_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      envconf.Duration("CENTRAQU_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       envconf.Duration("CENTRAQU_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: envconf.Int("CENTRAQU_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: envconf.String("CENTRAQU_DATABASE_URL", ""),
		DBMaxConns:  envconf.Int32("CENTRAQU_DB_MAX_CONNS", 10),
		DBMinConns:  envconf.Int32("CENTRAQU_DB_MIN_CONNS", 0),
		DBSchema:    envconf.String("CENTRAQU_DB_SCHEMA", "centraqu"),

		ReadinessRequireDB: envconf.Bool("CENTRAQU_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: envconf.Bool("CENTRAQU_REQUIRE_TOKEN_HMAC", false),

		MetricsEnabled: envconf.Bool("CENTRAQU_METRICS_ENABLED", true),
	}
}
