// Package client is the client-record collaborator used when a reviewed intake submission is
// approved. It maps a free-form submission payload onto a client record and creates or
// updates that record, keyed by normalized email.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid client input")
	// ErrNameRequired and ErrInvalidEmail refine ErrInvalidInput for ProfileFromData.
	ErrNameRequired = errors.New("client name is required")
	ErrInvalidEmail = errors.New("invalid client email")
	ErrNotFound     = errors.New("client not found")
)

// Client is a durable client record.
type Client struct {
	ID                 string
	Name               string
	Email              *string
	Phone              *string
	Address            *string
	Industry           *string
	ContactPerson      *string
	Profile            map[string]any
	SourceSubmissionID *string
	CreatedBy          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PromoteInput describes one promotion of accepted submission data.
type PromoteInput struct {
	SubmissionID string
	Data         map[string]any
	PromotedBy   string
	Now          time.Time
}

// Result is the outcome of a promotion.
type Result struct {
	Client  Client
	Created bool
}

// Directory creates, updates and reads client records.
type Directory interface {
	Promote(ctx context.Context, in PromoteInput) (Result, error)
	Get(ctx context.Context, id string) (Client, error)
}

// Profile holds the recognized fields of a submission payload.
type Profile struct {
	Name          string
	Email         *string
	Phone         *string
	Address       *string
	Industry      *string
	ContactPerson *string
}

var (
	nameKeys     = []string{"companyName", "company_name", "clientName", "client_name", "name"}
	emailKeys    = []string{"email", "contactEmail", "contact_email"}
	phoneKeys    = []string{"phone", "phoneNumber", "phone_number"}
	addressKeys  = []string{"address"}
	industryKeys = []string{"industry"}
	contactKeys  = []string{"contactPerson", "contact_person"}
)

// ProfileFromData extracts the recognized fields from data. A name is required; an email,
// when present, must parse as an address.
func ProfileFromData(data map[string]any) (Profile, error) {
	if len(data) == 0 {
		return Profile{}, fmt.Errorf("%w: empty submission data", ErrInvalidInput)
	}

	p := Profile{
		Email:         firstString(data, emailKeys),
		Phone:         firstString(data, phoneKeys),
		Address:       firstString(data, addressKeys),
		Industry:      firstString(data, industryKeys),
		ContactPerson: firstString(data, contactKeys),
	}
	name := firstString(data, nameKeys)
	if name == nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNameRequired)
	}
	p.Name = *name

	if p.Email != nil {
		addr, err := mail.ParseAddress(*p.Email)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrInvalidEmail)
		}
		e := addr.Address
		p.Email = &e
	}
	return p, nil
}

// NormalizeEmail returns the dedupe key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func firstString(data map[string]any, keys []string) *string {
	for _, k := range keys {
		raw, ok := data[k]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		return &s
	}
	return nil
}

func copyProfile(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pick(newVal, oldVal *string) *string {
	if newVal != nil {
		return newVal
	}
	return oldVal
}
