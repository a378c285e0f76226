package intakeapi

import (
	"context"
	"errors"
	"strings"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/security/token"
)

// ErrUnauthorized is returned when a bearer token does not resolve to a staff member.
var ErrUnauthorized = errors.New("unauthorized")

// Staff identifies the reviewer behind a request.
type Staff struct {
	Name string
}

// StaffAuthenticator resolves a bearer token to a staff identity. Session handling lives
// outside this subsystem; implementations adapt whatever the deployment uses.
type StaffAuthenticator interface {
	Authenticate(ctx context.Context, bearer string) (Staff, error)
}

// StaticTokenAuthenticator authenticates against a fixed set of configured tokens.
// Only token digests are held in memory.
type StaticTokenAuthenticator struct {
	entries []staticEntry
}

type staticEntry struct {
	name   string
	digest string
}

// NewStaticTokenAuthenticator builds an authenticator from name -> token pairs.
func NewStaticTokenAuthenticator(tokens map[string]string) *StaticTokenAuthenticator {
	a := &StaticTokenAuthenticator{}
	for name, tok := range tokens {
		name = strings.TrimSpace(name)
		tok = strings.TrimSpace(tok)
		if name == "" || tok == "" {
			continue
		}
		a.entries = append(a.entries, staticEntry{name: name, digest: token.HashSHA256Hex(tok)})
	}
	return a
}

// Len reports the number of configured staff tokens.
func (a *StaticTokenAuthenticator) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// Authenticate resolves bearer to a staff name. Every entry is compared.
func (a *StaticTokenAuthenticator) Authenticate(_ context.Context, bearer string) (Staff, error) {
	if a == nil || strings.TrimSpace(bearer) == "" {
		return Staff{}, ErrUnauthorized
	}
	digest := token.HashSHA256Hex(strings.TrimSpace(bearer))
	var match string
	for _, e := range a.entries {
		if token.EqualHex64(digest, e.digest) {
			match = e.name
		}
	}
	if match == "" {
		return Staff{}, ErrUnauthorized
	}
	return Staff{Name: match}, nil
}
