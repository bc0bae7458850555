package api

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds HTTP-surface configuration.
type Config struct {
	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64 `env:"UNIDASH_HTTP_MAX_BODY_BYTES" envDefault:"65536"`

	// FrontendURL is where login redirects land (dashboard / error pages).
	FrontendURL string `env:"UNIDASH_FRONTEND_URL" envDefault:"http://localhost:5173"`

	// AllowedEmailDomain restricts signups to one organization.
	AllowedEmailDomain string `env:"UNIDASH_ALLOWED_EMAIL_DOMAIN" envDefault:"vitstudent.ac.in"`

	GoogleClientID     string `env:"UNIDASH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"UNIDASH_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"UNIDASH_GOOGLE_REDIRECT_URI"`
}

// LoadConfigFromEnv loads Config with defaults. Parse failures abort startup:
// falling back to a zero AllowedEmailDomain would silently open signups to any
// email. Missing Google credentials are empty strings, not parse errors, so a
// dev server still boots without them.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load api config: %w", err)
	}
	return cfg, nil
}
