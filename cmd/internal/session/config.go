package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// CookieName is the session cookie's name.
	CookieName string `env:"UNIDASH_SESSION_COOKIE" envDefault:"unidash_session"`

	// TTL is the session lifetime. The original deployment used 7 days.
	TTL time.Duration `env:"UNIDASH_SESSION_TTL" envDefault:"168h"`

	// CookieSecure marks the cookie Secure; enable behind TLS.
	CookieSecure bool `env:"UNIDASH_SESSION_COOKIE_SECURE" envDefault:"false"`

	// TokenBytes is the entropy of opaque session tokens.
	TokenBytes int `env:"UNIDASH_SESSION_TOKEN_BYTES" envDefault:"32"`

	// HMACKey, when set, switches token hashing from plain SHA-256 to
	// HMAC-SHA-256 so a leaked sessions table cannot be brute-forced offline.
	HMACKey string `env:"UNIDASH_TOKEN_HMAC_KEY"`
}

// LoadConfigFromEnv loads session configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.TTL <= 0 {
		return Config{}, fmt.Errorf("%w: non-positive ttl", ErrConfig)
	}
	if cfg.TokenBytes < 16 {
		return Config{}, fmt.Errorf("%w: token entropy below 16 bytes", ErrConfig)
	}
	if cfg.HMACKey != "" && len(cfg.HMACKey) < 32 {
		return Config{}, fmt.Errorf("%w: hmac key below 32 bytes", ErrConfig)
	}
	return cfg, nil
}
