package app

import (
	"errors"

	"pinboard/cmd/security/token"
)

// ValidateSecurityConfig enforces the deployment security policy at
// startup. Failing fast beats silently running with weaker crypto.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.AuthStrategy != "bearer" && cfg.AuthStrategy != "session" {
		return errors.New("security policy: PINBOARD_AUTH_STRATEGY must be \"bearer\" or \"session\"")
	}
	if cfg.AuthStrategy == "bearer" && cfg.JWTSecret == "" {
		return errors.New("security policy: bearer strategy requires PINBOARD_JWT_SECRET")
	}
	if cfg.AuthStrategy == "session" && cfg.RedisAddr == "" {
		return errors.New("security policy: session strategy requires PINBOARD_REDIS_ADDR")
	}

	if cfg.RequireTokenHMAC {
		// 32 bytes minimum for an HMAC-SHA256 key, measured as raw bytes.
		if _, err := token.HMACKeyFromEnv(32); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return errors.New("security policy: PINBOARD_REQUIRE_TOKEN_HMAC=true but PINBOARD_TOKEN_HMAC_KEY is missing")
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return errors.New("security policy: PINBOARD_REQUIRE_TOKEN_HMAC=true but PINBOARD_TOKEN_HMAC_KEY is too short (min 32 bytes)")
			default:
				return err
			}
		}
	}
	return nil
}
