package accesscode

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Version = 19 // argon2.Version is 0x13 (19)

// Generate returns a new random code of Policy.Length characters drawn from Policy.Alphabet.
func (c Config) Generate() (string, error) {
	alphabet := c.Policy.Alphabet
	if alphabet == "" {
		alphabet = Alphabet
	}
	n := c.Policy.Length
	if n <= 0 {
		n = DefaultConfig().Policy.Length
	}

	limit := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("access code: %w", err)
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

// Normalize trims surrounding whitespace. The code itself must match exactly: case,
// dashes and inner spaces are significant.
func Normalize(code string) string {
	return strings.TrimSpace(code)
}

// Validate checks a code against the policy.
func (c Config) Validate(code string) error {
	if len(code) < c.Policy.MinLength {
		return ErrCodeTooShort
	}
	if c.Policy.MaxLength > 0 && len(code) > c.Policy.MaxLength {
		return ErrCodeTooLong
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ErrInvalidChar
		}
	}
	return nil
}

// Hash normalizes and hashes a code using Argon2id.
// Format:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func (c Config) Hash(code string) (string, error) {
	code = Normalize(code)
	if err := c.Validate(code); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(code), salt, c.Params.Iterations, c.Params.MemoryKiB, c.Params.Parallelism, c.Params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		c.Params.MemoryKiB,
		c.Params.Iterations,
		c.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether code matches encodedHash.
// Returns (false, nil) on mismatch, including input that is not a well-formed code,
// and (false, ErrInvalidHash) when the stored hash is malformed or out of bounds.
func (c Config) Verify(encodedHash, code string) (bool, error) {
	params, salt, expected, err := decode(encodedHash)
	if err != nil {
		return false, err
	}
	if !withinBounds(params, c.Params) {
		return false, ErrInvalidHash
	}

	code = Normalize(code)
	if c.Validate(code) != nil {
		return false, nil
	}

	key := argon2.IDKey(
		[]byte(code),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)), // #nosec G115 -- bounded by decode().
	)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// withinBounds accepts hashes made with cheaper settings and rejects much costlier ones,
// so a tampered row cannot turn a verify into a resource sink.
func withinBounds(got Argon2idParams, limits Argon2idParams) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

func decode(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)), // #nosec G115 -- base64 decode bounds length.
		KeyLength:   uint32(len(hash)), // #nosec G115 -- base64 decode bounds length.
	}, salt, hash, nil
}
