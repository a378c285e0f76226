package intake

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/ids"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/client"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/security/accesscode"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/security/token"
)

const (
	maxNotesLen     = 2000
	maxReasonLen    = 2000
	maxUserAgentLen = 512
	maxReviewerLen  = 128
)

// ClampUserAgent trims a user agent and caps it at maxUserAgentLen bytes without splitting a
// rune. Invalid sequences are dropped so the result is always valid UTF-8.
func ClampUserAgent(ua string) string {
	ua = strings.ToValidUTF8(strings.TrimSpace(ua), "")
	if len(ua) <= maxUserAgentLen {
		return ua
	}
	n := maxUserAgentLen
	for n > 0 && !utf8.RuneStart(ua[n]) {
		n--
	}
	return ua[:n]
}

// Promoter turns approved submission data into a client record.
type Promoter interface {
	Promote(ctx context.Context, in client.PromoteInput) (client.Result, error)
}

// Limits bounds staff-chosen link parameters.
type Limits struct {
	DefaultTTL     time.Duration
	MaxTTL         time.Duration
	DefaultMaxUses int
	MaxUsesCap     int
}

// DefaultLimits returns 7 day links with one use, capped at 30 days and 100 uses.
func DefaultLimits() Limits {
	return Limits{
		DefaultTTL:     7 * 24 * time.Hour,
		MaxTTL:         30 * 24 * time.Hour,
		DefaultMaxUses: 1,
		MaxUsesCap:     100,
	}
}

// Service implements link issuance, capability validation, guarded submission and review.
type Service struct {
	store      Store
	promoter   Promoter
	clock      func() time.Time
	tokenBytes int
	codes      accesscode.Config
	limits     Limits
	metrics    *Metrics
}

// Option configures the Service.
type Option func(*Service) error

// WithClock overrides the time source used when an input carries no Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) error {
		if clock == nil {
			return ErrInvalidInput
		}
		s.clock = clock
		return nil
	}
}

// WithTokenBytes sets the entropy of generated link tokens in bytes.
func WithTokenBytes(n int) Option {
	return func(s *Service) error {
		if n < 16 {
			return ErrInvalidInput
		}
		s.tokenBytes = n
		return nil
	}
}

// WithAccessCodeConfig sets access code shape and hashing cost.
func WithAccessCodeConfig(cfg accesscode.Config) Option {
	return func(s *Service) error {
		if cfg.Params.MemoryKiB == 0 || cfg.Params.Iterations == 0 || cfg.Params.Parallelism == 0 {
			return ErrInvalidInput
		}
		s.codes = cfg
		return nil
	}
}

// WithLimits sets link TTL and use caps.
func WithLimits(l Limits) Option {
	return func(s *Service) error {
		if l.DefaultTTL <= 0 || l.MaxTTL < l.DefaultTTL || l.DefaultMaxUses <= 0 || l.MaxUsesCap < l.DefaultMaxUses {
			return ErrInvalidInput
		}
		s.limits = l
		return nil
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, promoter Promoter, opts ...Option) (*Service, error) {
	if store == nil || promoter == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:      store,
		promoter:   promoter,
		clock:      time.Now,
		tokenBytes: token.DefaultBytes,
		codes:      accesscode.DefaultConfig(),
		limits:     DefaultLimits(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Now returns the service clock, truncated to the store's timestamp precision.
func (s *Service) Now() time.Time {
	return normalizeTime(s.clock())
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.Now()
	}
	return normalizeTime(t)
}

// normalizeTime matches PostgreSQL timestamptz precision so values compare equal after a
// round trip.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// CreateLinkInput describes link issuance by staff.
type CreateLinkInput struct {
	CreatedBy        *string
	ExpiresIn        time.Duration
	MaxUses          int
	RelatedAuditID   *string
	RelatedProjectID *string
	Notes            *string
	Metadata         map[string]any
	Now              time.Time
}

// CreatedLink carries the only copy of the plain token and access code.
type CreatedLink struct {
	Link       Link
	Token      string
	AccessCode string
}

// CreateLink issues a new link. Zero ExpiresIn and MaxUses take the defaults; larger values
// are clamped to the configured caps.
func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput) (CreatedLink, error) {
	const op = "intake.CreateLink"
	if s == nil || s.store == nil {
		return CreatedLink{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return CreatedLink{}, err
	}
	if in.ExpiresIn < 0 {
		return CreatedLink{}, invalid(op, "expiry must be positive")
	}
	if in.MaxUses < 0 {
		return CreatedLink{}, invalid(op, "max uses must be positive")
	}
	notes := trimPtr(in.Notes)
	if notes != nil && len(*notes) > maxNotesLen {
		return CreatedLink{}, invalid(op, "notes too long")
	}

	now := s.at(in.Now)
	ttl := in.ExpiresIn
	if ttl == 0 {
		ttl = s.limits.DefaultTTL
	}
	ttl = min(ttl, s.limits.MaxTTL)
	maxUses := in.MaxUses
	if maxUses == 0 {
		maxUses = s.limits.DefaultMaxUses
	}
	maxUses = min(maxUses, s.limits.MaxUsesCap)

	plainToken, err := token.New(s.tokenBytes)
	if err != nil {
		return CreatedLink{}, err
	}
	code, err := s.codes.Generate()
	if err != nil {
		return CreatedLink{}, err
	}
	codeHash, err := s.codes.Hash(code)
	if err != nil {
		return CreatedLink{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return CreatedLink{}, err
	}

	l, err := s.store.CreateLink(ctx, CreateLinkRecord{
		ID:               id,
		TokenHash:        token.HashLinkTokenHex(plainToken),
		AccessCodeHash:   codeHash,
		ExpiresAt:        normalizeTime(now.Add(ttl)),
		MaxUses:          maxUses,
		RelatedAuditID:   trimPtr(in.RelatedAuditID),
		RelatedProjectID: trimPtr(in.RelatedProjectID),
		Notes:            notes,
		Metadata:         in.Metadata,
		CreatedBy:        trimPtr(in.CreatedBy),
		Now:              now,
	})
	if err != nil {
		return CreatedLink{}, err
	}
	return CreatedLink{Link: l, Token: plainToken, AccessCode: code}, nil
}

// Verdict is the outcome of a capability check. Reason is nil exactly when Valid is true and
// otherwise carries one capability kind.
type Verdict struct {
	Valid  bool
	Reason error
	Status LinkStatus
	// Link is zero when Reason is ErrInvalidLink.
	Link Link
}

// Message returns the fixed user-facing message for the verdict.
func (v Verdict) Message() string {
	if v.Valid {
		return MessageValid
	}
	return UserMessage(v.Reason)
}

// Validate checks a token and access code at now (zero means the service clock).
// Business outcomes come back in the Verdict; the error is reserved for missing input and
// store faults. Validation never changes CurrentUses; it records LastAccessedAt on every
// attempt against a real token.
func (s *Service) Validate(ctx context.Context, tok, code string, now time.Time) (Verdict, error) {
	v, err := s.validate(ctx, tok, code, now)
	if err != nil {
		s.metrics.validation(err)
	} else {
		s.metrics.validation(v.Reason)
	}
	return v, err
}

func (s *Service) validate(ctx context.Context, tok, code string, now time.Time) (Verdict, error) {
	if s == nil || s.store == nil {
		return Verdict{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Verdict{}, MissingField("linkToken")
	}
	if strings.TrimSpace(code) == "" {
		return Verdict{}, MissingField("accessCode")
	}
	now = s.at(now)

	l, err := s.store.GetLinkByTokenHash(ctx, token.HashLinkTokenHex(tok))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Verdict{Reason: ErrInvalidLink}, nil
		}
		return Verdict{}, err
	}

	if err := s.store.TouchLink(ctx, l.ID, now); err != nil && !errors.Is(err, ErrNotFound) {
		return Verdict{}, err
	}
	l.LastAccessedAt = &now

	ok, err := s.codes.Verify(l.AccessCodeHash, code)
	if err != nil {
		return Verdict{}, err
	}
	status := StatusAt(l, now)
	if !ok {
		return Verdict{Reason: ErrInvalidAccessCode, Status: status, Link: l}, nil
	}
	if kind := status.Err(); kind != nil {
		return Verdict{Reason: kind, Status: status, Link: l}, nil
	}
	return Verdict{Valid: true, Status: status, Link: l}, nil
}

// SubmitInput is one external form submission.
type SubmitInput struct {
	Token      string
	AccessCode string
	Data       map[string]any
	IP         string
	UserAgent  string
	Now        time.Time
}

// SubmitResult is the accepted submission and the link after consumption.
type SubmitResult struct {
	Submission Submission
	Link       Link
}

// Submit validates the capability, then consumes one use and records a pending submission in a
// single guarded store operation. A link that exhausts or expires between the two steps fails
// with the kind the store observed and leaves no submission behind.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	res, err := s.submit(ctx, in)
	s.metrics.submission(err)
	return res, err
}

func (s *Service) submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	const op = "intake.Submit"
	if s == nil || s.store == nil {
		return SubmitResult{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.Token) == "" {
		return SubmitResult{}, ErrInvalidLink
	}
	if strings.TrimSpace(in.AccessCode) == "" {
		return SubmitResult{}, MissingField("accessCode")
	}
	if len(in.Data) == 0 {
		return SubmitResult{}, MissingField("clientData")
	}
	now := s.at(in.Now)

	v, err := s.validate(ctx, in.Token, in.AccessCode, now)
	if err != nil {
		return SubmitResult{}, err
	}
	if !v.Valid {
		return SubmitResult{}, OpError{Op: op, Kind: v.Reason}
	}
	// Reject data that could never be approved into a client record.
	if _, err := client.ProfileFromData(in.Data); err != nil {
		if errors.Is(err, client.ErrNameRequired) {
			return SubmitResult{}, MissingField("name")
		}
		return SubmitResult{}, OpError{Op: op, Kind: ErrInvalidClientData, Err: err}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return SubmitResult{}, err
	}
	ua := ClampUserAgent(in.UserAgent)

	sub, l, err := s.store.ConsumeAndCreateSubmission(ctx, SubmitRecord{
		LinkID:       v.Link.ID,
		SubmissionID: id,
		Data:         in.Data,
		IPAddress:    trimPtr(&in.IP),
		UserAgent:    trimPtr(&ua),
		Now:          now,
	})
	if err != nil {
		if IsCapabilityFailure(err) {
			return SubmitResult{}, OpError{Op: op, Kind: err, Msg: "guarded consume refused"}
		}
		return SubmitResult{}, err
	}
	return SubmitResult{Submission: sub, Link: l}, nil
}

// ReviewInput is one staff decision.
type ReviewInput struct {
	SubmissionID    string
	Action          string
	ReviewedBy      string
	Notes           *string
	RejectionReason *string
	Now             time.Time
}

// ReviewResult carries the reviewed submission and, on approval, the promoted client.
type ReviewResult struct {
	Submission Submission
	Client     *client.Result
}

// Review moves a pending submission to approved or rejected exactly once. An unknown id is
// reported before an unknown action.
//
// Approval is a conditional transition followed by promotion. If promotion fails the approval is
// reverted to pending, so no submission stays approved without a client. Data the directory
// refuses yields ErrInvalidClientData; any other failure yields ErrPromotionFailed.
func (s *Service) Review(ctx context.Context, in ReviewInput) (ReviewResult, error) {
	res, action, err := s.review(ctx, in)
	s.metrics.review(action, err)
	return res, err
}

func (s *Service) review(ctx context.Context, in ReviewInput) (ReviewResult, ReviewAction, error) {
	const op = "intake.Review"
	if s == nil || s.store == nil {
		return ReviewResult{}, "", ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ReviewResult{}, "", err
	}
	id := strings.TrimSpace(in.SubmissionID)
	if id == "" {
		return ReviewResult{}, "", MissingField("submissionId")
	}
	if _, err := s.store.GetSubmission(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReviewResult{}, "", OpError{Op: op, Kind: ErrNotFound}
		}
		return ReviewResult{}, "", err
	}
	action, err := ParseReviewAction(in.Action)
	if err != nil {
		return ReviewResult{}, "", err
	}
	reviewer := strings.TrimSpace(in.ReviewedBy)
	if reviewer == "" || len(reviewer) > maxReviewerLen {
		return ReviewResult{}, action, invalid(op, "reviewer is required")
	}
	notes := trimPtr(in.Notes)
	if notes != nil && len(*notes) > maxNotesLen {
		return ReviewResult{}, action, invalid(op, "notes too long")
	}
	var reason *string
	if action == ActionReject {
		reason = trimPtr(in.RejectionReason)
		if reason != nil && len(*reason) > maxReasonLen {
			return ReviewResult{}, action, invalid(op, "rejection reason too long")
		}
	}
	now := s.at(in.Now)

	sub, err := s.store.TransitionSubmission(ctx, ReviewRecord{
		SubmissionID:    id,
		Status:          action.Target(),
		ReviewedBy:      reviewer,
		ReviewedAt:      now,
		Notes:           notes,
		RejectionReason: reason,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyReviewed) || errors.Is(err, ErrNotFound) {
			return ReviewResult{}, action, OpError{Op: op, Kind: err}
		}
		return ReviewResult{}, action, err
	}
	if action == ActionReject {
		return ReviewResult{Submission: sub}, action, nil
	}

	promoted, err := s.promoter.Promote(ctx, client.PromoteInput{
		SubmissionID: sub.ID,
		Data:         sub.Data,
		PromotedBy:   reviewer,
		Now:          now,
	})
	if err != nil {
		// The revert must run even when the request context is already gone.
		_, rerr := s.store.RevertApproval(context.WithoutCancel(ctx), RevertRecord{
			SubmissionID: sub.ID,
			ReviewedBy:   reviewer,
			ReviewedAt:   now,
		})
		if rerr == nil && errors.Is(err, client.ErrInvalidInput) {
			return ReviewResult{}, action, OpError{Op: op, Kind: ErrInvalidClientData, Err: err}
		}
		return ReviewResult{}, action, OpError{Op: op, Kind: ErrPromotionFailed, Err: errors.Join(err, rerr)}
	}
	return ReviewResult{Submission: sub, Client: &promoted}, action, nil
}

// DeactivateLink revokes a link. Deactivating an inactive link succeeds.
func (s *Service) DeactivateLink(ctx context.Context, id string) (Link, error) {
	if s == nil || s.store == nil {
		return Link{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Link{}, MissingField("id")
	}
	return s.store.UpdateLink(ctx, UpdateLinkRecord{ID: id, Deactivate: true, Now: s.Now()})
}

// UpdateLinkInput is a staff edit of link annotations.
type UpdateLinkInput struct {
	ID string
	// Notes replaces the notes when SetNotes is true; nil clears them.
	SetNotes bool
	Notes    *string
	Metadata map[string]any
}

// UpdateLinkNotes edits notes and, when given, metadata.
func (s *Service) UpdateLinkNotes(ctx context.Context, in UpdateLinkInput) (Link, error) {
	const op = "intake.UpdateLinkNotes"
	if s == nil || s.store == nil {
		return Link{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return Link{}, MissingField("id")
	}
	if !in.SetNotes && in.Metadata == nil {
		return Link{}, invalid(op, "nothing to update")
	}
	notes := trimPtr(in.Notes)
	if notes != nil && len(*notes) > maxNotesLen {
		return Link{}, invalid(op, "notes too long")
	}
	return s.store.UpdateLink(ctx, UpdateLinkRecord{
		ID:       id,
		SetNotes: in.SetNotes,
		Notes:    notes,
		Metadata: in.Metadata,
		Now:      s.Now(),
	})
}

// DeleteLink removes a link that has no submissions.
func (s *Service) DeleteLink(ctx context.Context, id string) error {
	if s == nil || s.store == nil {
		return ErrInvalidInput
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return MissingField("id")
	}
	if err := s.store.DeleteLink(ctx, id); err != nil {
		if errors.Is(err, ErrLinkInUse) {
			return OpError{Op: "intake.DeleteLink", Kind: ErrLinkInUse}
		}
		return err
	}
	return nil
}

// GetLink returns a link by id.
func (s *Service) GetLink(ctx context.Context, id string) (Link, error) {
	if s == nil || s.store == nil {
		return Link{}, ErrInvalidInput
	}
	return s.store.GetLink(ctx, strings.TrimSpace(id))
}

// LookupLink resolves a plain token for the public info endpoint.
func (s *Service) LookupLink(ctx context.Context, tok string) (Link, error) {
	if s == nil || s.store == nil {
		return Link{}, ErrInvalidInput
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Link{}, ErrNotFound
	}
	return s.store.GetLinkByTokenHash(ctx, token.HashLinkTokenHex(tok))
}

// ListLinks lists links; a zero f.Now evaluates the status filter at the service clock.
func (s *Service) ListLinks(ctx context.Context, f LinkFilter) ([]Link, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	f.Now = s.at(f.Now)
	return s.store.ListLinks(ctx, f)
}

// GetSubmission returns a submission by id.
func (s *Service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	if s == nil || s.store == nil {
		return Submission{}, ErrInvalidInput
	}
	return s.store.GetSubmission(ctx, strings.TrimSpace(id))
}

// ListSubmissions lists submissions newest first.
func (s *Service) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	return s.store.ListSubmissions(ctx, f)
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
