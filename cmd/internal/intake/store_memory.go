package intake

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is the dev fallback when no database is configured.
// A single mutex serializes every write, which makes the guarded increment trivially atomic.
type InMemoryStore struct {
	mu          sync.Mutex
	links       map[string]Link
	byTokenHash map[string]string
	subs        map[string]Submission
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		links:       make(map[string]Link),
		byTokenHash: make(map[string]string),
		subs:        make(map[string]Submission),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// CreateLink inserts a new link.
func (s *InMemoryStore) CreateLink(ctx context.Context, in CreateLinkRecord) (Link, error) {
	const op = "intake.InMemoryStore.CreateLink"
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.TokenHash) == "" || in.AccessCodeHash == "" {
		return Link{}, invalid(op, "id, token hash and access code hash are required")
	}
	if in.MaxUses <= 0 {
		return Link{}, invalid(op, "max uses must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[in.ID]; ok {
		return Link{}, invalid(op, "duplicate id")
	}
	if _, ok := s.byTokenHash[in.TokenHash]; ok {
		return Link{}, invalid(op, "duplicate token")
	}

	l := Link{
		ID:               in.ID,
		TokenHash:        in.TokenHash,
		AccessCodeHash:   in.AccessCodeHash,
		IsActive:         true,
		ExpiresAt:        in.ExpiresAt,
		MaxUses:          in.MaxUses,
		CurrentUses:      0,
		RelatedAuditID:   in.RelatedAuditID,
		RelatedProjectID: in.RelatedProjectID,
		Notes:            in.Notes,
		Metadata:         cloneMap(in.Metadata),
		CreatedBy:        in.CreatedBy,
		CreatedAt:        in.Now,
		UpdatedAt:        in.Now,
	}
	s.links[l.ID] = l
	s.byTokenHash[l.TokenHash] = l.ID
	return cloneLink(l), nil
}

// GetLink fetches a link by id.
func (s *InMemoryStore) GetLink(ctx context.Context, id string) (Link, error) {
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return Link{}, ErrNotFound
	}
	return cloneLink(l), nil
}

// GetLinkByTokenHash fetches a link by token hash.
func (s *InMemoryStore) GetLinkByTokenHash(ctx context.Context, tokenHash string) (Link, error) {
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTokenHash[tokenHash]
	if !ok {
		return Link{}, ErrNotFound
	}
	return cloneLink(s.links[id]), nil
}

// ListLinks returns links newest first.
func (s *InMemoryStore) ListLinks(ctx context.Context, f LinkFilter) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := f.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	out := make([]Link, 0, len(s.links))
	for _, l := range s.links {
		if f.Status != "" && StatusAt(l, now) != f.Status {
			continue
		}
		if f.RelatedAuditID != "" && (l.RelatedAuditID == nil || *l.RelatedAuditID != f.RelatedAuditID) {
			continue
		}
		if f.RelatedProjectID != "" && (l.RelatedProjectID == nil || *l.RelatedProjectID != f.RelatedProjectID) {
			continue
		}
		out = append(out, cloneLink(l))
	}
	s.mu.Unlock()

	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TouchLink sets LastAccessedAt.
func (s *InMemoryStore) TouchLink(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return ErrNotFound
	}
	t := now
	l.LastAccessedAt = &t
	s.links[id] = l
	return nil
}

// UpdateLink applies a staff edit.
func (s *InMemoryStore) UpdateLink(ctx context.Context, in UpdateLinkRecord) (Link, error) {
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[in.ID]
	if !ok {
		return Link{}, ErrNotFound
	}
	if in.Deactivate {
		l.IsActive = false
	}
	if in.SetNotes {
		l.Notes = in.Notes
	}
	if in.Metadata != nil {
		l.Metadata = cloneMap(in.Metadata)
	}
	l.UpdatedAt = in.Now
	s.links[in.ID] = l
	return cloneLink(l), nil
}

// DeleteLink removes a link that has no submissions.
func (s *InMemoryStore) DeleteLink(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return ErrNotFound
	}
	for _, sub := range s.subs {
		if sub.LinkID == id {
			return ErrLinkInUse
		}
	}
	delete(s.byTokenHash, l.TokenHash)
	delete(s.links, id)
	return nil
}

// ConsumeAndCreateSubmission performs the guarded increment and insert under the store lock.
func (s *InMemoryStore) ConsumeAndCreateSubmission(ctx context.Context, in SubmitRecord) (Submission, Link, error) {
	const op = "intake.InMemoryStore.ConsumeAndCreateSubmission"
	if err := ctx.Err(); err != nil {
		return Submission{}, Link{}, err
	}
	if in.LinkID == "" || in.SubmissionID == "" {
		return Submission{}, Link{}, invalid(op, "link id and submission id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[in.LinkID]
	if !ok {
		return Submission{}, Link{}, ErrInvalidLink
	}
	if err := StatusAt(l, in.Now).Err(); err != nil {
		return Submission{}, Link{}, err
	}
	if _, dup := s.subs[in.SubmissionID]; dup {
		return Submission{}, Link{}, invalid(op, "duplicate submission id")
	}

	l.CurrentUses++
	l.UpdatedAt = in.Now
	s.links[l.ID] = l

	sub := Submission{
		ID:          in.SubmissionID,
		LinkID:      l.ID,
		Data:        cloneMap(in.Data),
		SubmittedAt: in.Now,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Status:      SubmissionPending,
	}
	s.subs[sub.ID] = sub
	return cloneSubmission(sub), cloneLink(l), nil
}

// GetSubmission fetches a submission by id.
func (s *InMemoryStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return cloneSubmission(sub), nil
}

// ListSubmissions returns submissions newest first.
func (s *InMemoryStore) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]Submission, 0, len(s.subs))
	for _, sub := range s.subs {
		if f.LinkID != "" && sub.LinkID != f.LinkID {
			continue
		}
		if f.Status != "" && sub.Status != f.Status {
			continue
		}
		out = append(out, cloneSubmission(sub))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TransitionSubmission applies a one-shot review.
func (s *InMemoryStore) TransitionSubmission(ctx context.Context, in ReviewRecord) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	if !in.Status.Terminal() {
		return Submission{}, invalid("intake.InMemoryStore.TransitionSubmission", "target status must be terminal")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[in.SubmissionID]
	if !ok {
		return Submission{}, ErrNotFound
	}
	if sub.Status != SubmissionPending {
		return Submission{}, ErrAlreadyReviewed
	}
	reviewer := in.ReviewedBy
	at := in.ReviewedAt
	sub.Status = in.Status
	sub.ReviewedBy = &reviewer
	sub.ReviewedAt = &at
	sub.Notes = in.Notes
	sub.RejectionReason = in.RejectionReason
	s.subs[sub.ID] = sub
	return cloneSubmission(sub), nil
}

// RevertApproval returns an approved submission to pending.
func (s *InMemoryStore) RevertApproval(ctx context.Context, in RevertRecord) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[in.SubmissionID]
	if !ok {
		return Submission{}, ErrNotFound
	}
	if sub.Status != SubmissionApproved ||
		sub.ReviewedBy == nil || *sub.ReviewedBy != in.ReviewedBy ||
		sub.ReviewedAt == nil || !sub.ReviewedAt.Equal(in.ReviewedAt) {
		return Submission{}, ErrAlreadyReviewed
	}
	sub.Status = SubmissionPending
	sub.ReviewedBy = nil
	sub.ReviewedAt = nil
	sub.Notes = nil
	sub.RejectionReason = nil
	s.subs[sub.ID] = sub
	return cloneSubmission(sub), nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneLink(l Link) Link {
	l.Metadata = cloneMap(l.Metadata)
	return l
}

func cloneSubmission(s Submission) Submission {
	s.Data = cloneMap(s.Data)
	return s
}
