package app

import (
	"errors"

	"unidash/cmd/internal/session"
)

// ValidateSecurityConfig enforces the deployment security policy at startup.
// Fail-fast: a production instance must never silently fall back to plain
// SHA-256 session token hashing when the operator asked for HMAC.
func ValidateSecurityConfig(cfg Config, sessCfg session.Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Key length is measured in bytes, not runes; the key is used raw.
	switch {
	case sessCfg.HMACKey == "":
		return errors.New("security policy: UNIDASH_REQUIRE_TOKEN_HMAC=true but UNIDASH_TOKEN_HMAC_KEY is missing")
	case len(sessCfg.HMACKey) < 32:
		return errors.New("security policy: UNIDASH_REQUIRE_TOKEN_HMAC=true but UNIDASH_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	}
	return nil
}
