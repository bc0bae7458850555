package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"UNIDASH_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"UNIDASH_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"UNIDASH_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"UNIDASH_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"UNIDASH_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"UNIDASH_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"UNIDASH_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"UNIDASH_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	DatabaseURL string `env:"UNIDASH_DATABASE_URL"`
	DBMaxConns  int32  `env:"UNIDASH_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"UNIDASH_DB_MIN_CONNS" envDefault:"0"`

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool `env:"UNIDASH_READINESS_REQUIRE_DB" envDefault:"false"`

	// Security policy:
	// If true, UNIDASH_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so session
	// token hashing is HMAC-based.
	RequireTokenHMAC bool `env:"UNIDASH_REQUIRE_TOKEN_HMAC" envDefault:"false"`

	// The dashboard frontend is served from another origin and authenticates
	// with cookies, so CORS must allow credentials for exactly these origins.
	CORSAllowedOrigins   []string `env:"UNIDASH_CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	CORSAllowCredentials bool     `env:"UNIDASH_CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	CORSMaxAgeSeconds    int      `env:"UNIDASH_CORS_MAX_AGE_SECONDS" envDefault:"600"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
