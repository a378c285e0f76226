package accesscode

import "errors"

// Public, stable errors for callers.
var (
	ErrCodeTooShort = errors.New("access code too short")
	ErrCodeTooLong  = errors.New("access code too long")
	ErrInvalidChar  = errors.New("access code contains invalid characters")
	ErrInvalidHash  = errors.New("invalid access code hash")
)
