package intakeapi

import (
	"encoding/json"
	"time"
)

type validateRequest struct {
	LinkToken  string `json:"linkToken"`
	AccessCode string `json:"accessCode"`
}

type submitRequest struct {
	AccessCode string         `json:"accessCode"`
	ClientData map[string]any `json:"clientData"`
}

type createLinkRequest struct {
	ExpiresInHours   float64        `json:"expiresInHours"`
	MaxUses          int            `json:"maxUses"`
	RelatedAuditID   *string        `json:"relatedAuditId"`
	RelatedProjectID *string        `json:"relatedProjectId"`
	Notes            *string        `json:"notes"`
	Metadata         map[string]any `json:"metadata"`
}

// updateLinkRequest keeps notes raw so an explicit null clears them while an absent key
// leaves them alone.
type updateLinkRequest struct {
	Notes    json.RawMessage `json:"notes"`
	Metadata map[string]any  `json:"metadata"`
}

type reviewRequest struct {
	Action          string  `json:"action"`
	Notes           *string `json:"notes"`
	RejectionReason *string `json:"rejectionReason"`
}

type validateLink struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type validateResponse struct {
	IsValid bool          `json:"isValid"`
	Message string        `json:"message"`
	Reason  string        `json:"reason,omitempty"`
	Link    *validateLink `json:"link,omitempty"`
}

type linkInfoResponse struct {
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type submitResponse struct {
	SubmissionID string `json:"submissionId"`
	Message      string `json:"message"`
}

type linkResponse struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	IsActive         bool           `json:"isActive"`
	ExpiresAt        time.Time      `json:"expiresAt"`
	MaxUses          int            `json:"maxUses"`
	CurrentUses      int            `json:"currentUses"`
	RemainingUses    int            `json:"remainingUses"`
	RelatedAuditID   *string        `json:"relatedAuditId"`
	RelatedProjectID *string        `json:"relatedProjectId"`
	Notes            *string        `json:"notes"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedBy        *string        `json:"createdBy"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	LastAccessedAt   *time.Time     `json:"lastAccessedAt"`
}

type createLinkResponse struct {
	Link       linkResponse `json:"link"`
	Token      string       `json:"token"`
	AccessCode string       `json:"accessCode"`
	ShareURL   string       `json:"shareUrl,omitempty"`
}

type submissionResponse struct {
	ID              string         `json:"id"`
	LinkID          string         `json:"linkId"`
	SubmissionData  map[string]any `json:"submissionData"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	IPAddress       *string        `json:"ipAddress"`
	UserAgent       *string        `json:"userAgent"`
	Status          string         `json:"status"`
	ReviewedBy      *string        `json:"reviewedBy"`
	ReviewedAt      *time.Time     `json:"reviewedAt"`
	Notes           *string        `json:"notes"`
	RejectionReason *string        `json:"rejectionReason"`
}

type clientResponse struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Email   *string `json:"email"`
	Created bool    `json:"created"`
}

type reviewResponse struct {
	Submission submissionResponse `json:"submission"`
	Client     *clientResponse    `json:"client,omitempty"`
	Message    string             `json:"message"`
}

type auditEventResponse struct {
	Action       string         `json:"action"`
	Actor        *string        `json:"actor"`
	LinkID       *string        `json:"linkId"`
	SubmissionID *string        `json:"submissionId"`
	IP           *string        `json:"ip"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
