package intake

import "errors"

// MessageValid is shown when a link and access code pass validation.
const MessageValid = "Link is valid. You may continue with the form."

// MessageSubmitted confirms a successful submission to the external party.
const MessageSubmitted = "Thank you. Your information has been submitted and will be reviewed by our team."

var userMessages = []struct {
	kind error
	code string
	msg  string
}{
	{ErrInvalidLink, "invalid_link", "Invalid link. Please check the URL or contact us for a new link."},
	{ErrInvalidAccessCode, "invalid_access_code", "Incorrect access code. Please check the code you were given."},
	{ErrExpired, "link_expired", "Link expired. Please contact us for a new link."},
	{ErrExhausted, "link_exhausted", "Link already used. Please contact us if you need to submit again."},
	{ErrDeactivated, "link_deactivated", "Link deactivated. Please contact us for a new link."},
	{ErrMissingField, "missing_field", "A required field is missing."},
	{ErrNotFound, "not_found", "Not found."},
	{ErrInvalidAction, "invalid_action", "Action must be approve or reject."},
	{ErrAlreadyReviewed, "already_reviewed", "Submission has already been reviewed."},
	{ErrLinkInUse, "link_in_use", "Link has submissions and cannot be deleted."},
	{ErrInvalidClientData, "invalid_client_data", "Submission data cannot form a client record. Please check the name and email."},
	{ErrPromotionFailed, "promotion_failed", "Client record could not be created; the submission was left pending."},
	{ErrInvalidInput, "invalid_request", "Invalid request."},
}

// UserMessage returns the fixed user-facing message for err's kind.
// Unknown errors map to a generic message so internal detail never leaks.
func UserMessage(err error) string {
	if err == nil {
		return MessageValid
	}
	var mf MissingFieldError
	if errors.As(err, &mf) && mf.Field != "" {
		return mf.Field + " is required."
	}
	for _, m := range userMessages {
		if errors.Is(err, m.kind) {
			return m.msg
		}
	}
	return "Internal error. Please try again later."
}

// Code returns a stable machine-readable code for err's kind.
func Code(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.kind) {
			return m.code
		}
	}
	return "server_error"
}
