// Package token mints and hashes intake link tokens.
//
// A link token is the public half of the intake capability: it is embedded in the shared
// URL, so only its digest is ever persisted.
//
// Hash modes:
// - SHA-256(token) when no HMAC key is configured (dev).
// - HMAC-SHA256(token, key) when CENTRAQU_TOKEN_HMAC_KEY is set.
//
// Policy: with CENTRAQU_REQUIRE_TOKEN_HMAC=true the server refuses to start unless the key is
// at least 32 bytes long (see app.ValidateSecurityConfig).
package token
