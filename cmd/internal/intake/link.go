package intake

import "time"

// Link is an intake link row. TokenHash and AccessCodeHash never leave the server.
type Link struct {
	ID               string
	TokenHash        string
	AccessCodeHash   string
	IsActive         bool
	ExpiresAt        time.Time
	MaxUses          int
	CurrentUses      int
	RelatedAuditID   *string
	RelatedProjectID *string
	Notes            *string
	Metadata         map[string]any
	CreatedBy        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastAccessedAt   *time.Time
}

// LinkStatus is the externally visible status of a link. It is derived, never stored.
type LinkStatus string

const (
	StatusActive    LinkStatus = "active"
	StatusExpired   LinkStatus = "expired"
	StatusExhausted LinkStatus = "exhausted"
	StatusRevoked   LinkStatus = "revoked"
)

// StatusAt derives the status of l at now. First match wins:
// revoked, then expired (now strictly after ExpiresAt), then exhausted, else active.
func StatusAt(l Link, now time.Time) LinkStatus {
	switch {
	case !l.IsActive:
		return StatusRevoked
	case now.After(l.ExpiresAt):
		return StatusExpired
	case l.CurrentUses >= l.MaxUses:
		return StatusExhausted
	default:
		return StatusActive
	}
}

// Err returns the failure kind for a non-active status, or nil for active.
func (s LinkStatus) Err() error {
	switch s {
	case StatusActive:
		return nil
	case StatusRevoked:
		return ErrDeactivated
	case StatusExpired:
		return ErrExpired
	case StatusExhausted:
		return ErrExhausted
	default:
		return ErrInvalidLink
	}
}

// ParseLinkStatus parses a status filter value.
func ParseLinkStatus(s string) (LinkStatus, bool) {
	switch LinkStatus(s) {
	case StatusActive, StatusExpired, StatusExhausted, StatusRevoked:
		return LinkStatus(s), true
	default:
		return "", false
	}
}

// RemainingUses reports how many submissions the link still admits, ignoring status.
func (l Link) RemainingUses() int {
	if l.CurrentUses >= l.MaxUses {
		return 0
	}
	return l.MaxUses - l.CurrentUses
}
