package intake

import (
	"errors"
	"fmt"
)

// Kinds. Every business-rule failure carries exactly one of these, matched via errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidLink       = errors.New("invalid link")
	ErrInvalidAccessCode = errors.New("incorrect access code")
	ErrExpired           = errors.New("link expired")
	ErrExhausted         = errors.New("link already used")
	ErrDeactivated       = errors.New("link deactivated")
	ErrMissingField      = errors.New("required field missing")
	ErrNotFound          = errors.New("not found")
	ErrInvalidAction     = errors.New("invalid review action")
	ErrAlreadyReviewed   = errors.New("submission already reviewed")
	ErrLinkInUse         = errors.New("link has submissions")
	ErrPromotionFailed   = errors.New("client promotion failed")
	ErrInvalidClientData = errors.New("submission data cannot form a client record")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may carry human-readable context; it never includes secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e OpError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap exposes both the kind and the underlying cause.
func (e OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// MissingFieldError reports an absent required request field.
type MissingFieldError struct {
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingField, e.Field)
}

func (e MissingFieldError) Unwrap() error { return ErrMissingField }

// MissingField returns a MissingFieldError for field.
func MissingField(field string) error { return MissingFieldError{Field: field} }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCapabilityFailure reports whether err is one of the link capability kinds
// (unknown link, wrong code, expired, exhausted, deactivated).
func IsCapabilityFailure(err error) bool {
	return errors.Is(err, ErrInvalidLink) ||
		errors.Is(err, ErrInvalidAccessCode) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrExhausted) ||
		errors.Is(err, ErrDeactivated)
}

// IsBusinessFailure reports whether err is an expected rule outcome rather than a fault.
func IsBusinessFailure(err error) bool {
	if err == nil {
		return false
	}
	return IsCapabilityFailure(err) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrAlreadyReviewed) ||
		errors.Is(err, ErrLinkInUse) ||
		errors.Is(err, ErrInvalidClientData)
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}
