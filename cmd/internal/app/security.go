package app

import (
	"errors"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/security/token"
)

// ValidateSecurityConfig enforces the token hashing policy at startup.
// Under RequireTokenHMAC a missing or short key is fatal; there is no SHA-256 fallback.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Key length is measured in bytes because the key is used raw.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: CENTRAQU_REQUIRE_TOKEN_HMAC=true but CENTRAQU_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: CENTRAQU_REQUIRE_TOKEN_HMAC=true but CENTRAQU_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: CENTRAQU_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
