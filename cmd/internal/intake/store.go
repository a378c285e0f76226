package intake

import (
	"context"
	"time"
)

// CreateLinkRecord is a normalized link insert payload.
type CreateLinkRecord struct {
	ID               string
	TokenHash        string
	AccessCodeHash   string
	ExpiresAt        time.Time
	MaxUses          int
	RelatedAuditID   *string
	RelatedProjectID *string
	Notes            *string
	Metadata         map[string]any
	CreatedBy        *string
	Now              time.Time
}

// UpdateLinkRecord describes a staff edit. Nil/false fields are left unchanged.
type UpdateLinkRecord struct {
	ID         string
	Deactivate bool
	SetNotes   bool
	Notes      *string
	// Metadata replaces the stored metadata when non-nil.
	Metadata map[string]any
	Now      time.Time
}

// LinkFilter narrows ListLinks. Status is evaluated at Now.
type LinkFilter struct {
	Status           LinkStatus
	RelatedAuditID   string
	RelatedProjectID string
	Now              time.Time
	Limit            int
}

// SubmitRecord describes one guarded consumption plus the submission it produces.
type SubmitRecord struct {
	LinkID       string
	SubmissionID string
	Data         map[string]any
	IPAddress    *string
	UserAgent    *string
	Now          time.Time
}

// ReviewRecord moves a pending submission into a terminal state.
type ReviewRecord struct {
	SubmissionID    string
	Status          SubmissionStatus
	ReviewedBy      string
	ReviewedAt      time.Time
	Notes           *string
	RejectionReason *string
}

// RevertRecord undoes an approval whose promotion failed. It only matches the exact
// approval identified by ReviewedBy and ReviewedAt.
type RevertRecord struct {
	SubmissionID string
	ReviewedBy   string
	ReviewedAt   time.Time
}

// SubmissionFilter narrows ListSubmissions.
type SubmissionFilter struct {
	LinkID string
	Status SubmissionStatus
	Limit  int
}

// LinkStore is the persistence boundary for links.
type LinkStore interface {
	CreateLink(ctx context.Context, in CreateLinkRecord) (Link, error)
	GetLink(ctx context.Context, id string) (Link, error)
	GetLinkByTokenHash(ctx context.Context, tokenHash string) (Link, error)
	ListLinks(ctx context.Context, f LinkFilter) ([]Link, error)
	// TouchLink records an access attempt. It never changes CurrentUses.
	TouchLink(ctx context.Context, id string, now time.Time) error
	UpdateLink(ctx context.Context, in UpdateLinkRecord) (Link, error)
	// DeleteLink fails with ErrLinkInUse while submissions reference the link.
	DeleteLink(ctx context.Context, id string) error
}

// SubmissionStore is the persistence boundary for submissions.
type SubmissionStore interface {
	// ConsumeAndCreateSubmission re-checks the link status at in.Now, increments CurrentUses
	// only while CurrentUses < MaxUses, and inserts the pending submission, all atomically.
	// When the guard fails it returns the kind from StatusAt (or ErrInvalidLink) and writes
	// nothing.
	ConsumeAndCreateSubmission(ctx context.Context, in SubmitRecord) (Submission, Link, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error)
	// TransitionSubmission applies a review only while status = pending. It returns
	// ErrNotFound for unknown ids and ErrAlreadyReviewed otherwise.
	TransitionSubmission(ctx context.Context, in ReviewRecord) (Submission, error)
	RevertApproval(ctx context.Context, in RevertRecord) (Submission, error)
}

// Store combines both boundaries. Implementations must be safe for concurrent use.
type Store interface {
	LinkStore
	SubmissionStore
	Close() error
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
