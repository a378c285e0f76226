package intake

import (
	"strings"
	"time"
)

// Submission is one accepted intake form.
type Submission struct {
	ID              string
	LinkID          string
	Data            map[string]any
	SubmittedAt     time.Time
	IPAddress       *string
	UserAgent       *string
	Status          SubmissionStatus
	ReviewedBy      *string
	ReviewedAt      *time.Time
	Notes           *string
	RejectionReason *string
}

// SubmissionStatus is a closed set: pending, then exactly one of the two terminal states.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionApproved || s == SubmissionRejected
}

// ParseSubmissionStatus parses a status filter value.
func ParseSubmissionStatus(s string) (SubmissionStatus, bool) {
	switch SubmissionStatus(s) {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return SubmissionStatus(s), true
	default:
		return "", false
	}
}

// ReviewAction is a staff decision on a pending submission.
type ReviewAction string

const (
	ActionApprove ReviewAction = "approve"
	ActionReject  ReviewAction = "reject"
)

// ParseReviewAction accepts "approve" or "reject" (case-insensitive, trimmed).
func ParseReviewAction(s string) (ReviewAction, error) {
	switch ReviewAction(strings.ToLower(strings.TrimSpace(s))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	default:
		return "", OpError{Op: "intake.ParseReviewAction", Kind: ErrInvalidAction}
	}
}

// Target returns the terminal status the action moves a submission into.
func (a ReviewAction) Target() SubmissionStatus {
	if a == ActionApprove {
		return SubmissionApproved
	}
	return SubmissionRejected
}
