package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions.
const (
	AuditLinkCreated        = "intake.link.created"
	AuditLinkUpdated        = "intake.link.updated"
	AuditLinkDeactivated    = "intake.link.deactivated"
	AuditLinkDeleted        = "intake.link.deleted"
	AuditSubmissionCreated  = "intake.submission.created"
	AuditSubmissionApproved = "intake.submission.approved"
	AuditSubmissionRejected = "intake.submission.rejected"
)

// AuditEvent is one append-only audit record. Secrets never appear in Meta.
type AuditEvent struct {
	Action       string
	Actor        *string
	LinkID       *string
	SubmissionID *string
	IP           *string
	UserAgent    *string
	Meta         map[string]any
	CreatedAt    time.Time
}

// AuditFilter narrows ListAudit. Limit <= 0 uses the default.
type AuditFilter struct {
	LinkID string
	Limit  int
}

// AuditLog records staff and public actions on links and submissions.
type AuditLog interface {
	Record(ctx context.Context, e AuditEvent) error
	List(ctx context.Context, f AuditFilter) ([]AuditEvent, error)
}

// MemoryAuditLog keeps events in process memory, newest last.
type MemoryAuditLog struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditLog returns an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

func (m *MemoryAuditLog) Record(ctx context.Context, e AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Action) == "" {
		return ErrInvalidInput
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = normalizeTime(time.Now())
	}
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

// List returns matching events newest first.
func (m *MemoryAuditLog) List(ctx context.Context, f AuditFilter) ([]AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := clampLimit(f.Limit)
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditEvent, 0, min(limit, len(m.events)))
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if f.LinkID != "" && (e.LinkID == nil || *e.LinkID != f.LinkID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// PostgresAuditLog appends events to intake_audit_log. The pool is owned by the caller.
type PostgresAuditLog struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresAuditLog constructs a PostgresAuditLog writing to schema.
func NewPostgresAuditLog(pool *pgxpool.Pool, schema string) (*PostgresAuditLog, error) {
	schema = strings.TrimSpace(schema)
	if pool == nil || schema == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresAuditLog{pool: pool, schema: schema}, nil
}

func (p *PostgresAuditLog) Record(ctx context.Context, e AuditEvent) error {
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return ErrInvalidInput
	}
	meta, err := encodeJSON(e.Meta)
	if err != nil {
		return err
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = normalizeTime(time.Now())
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (action, actor, link_id, submission_id, ip, user_agent, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
	`, pgIdent(p.schema, "intake_audit_log")),
		action, e.Actor, e.LinkID, e.SubmissionID, e.IP, e.UserAgent, meta, createdAt)
	return err
}

// List returns matching events newest first.
func (p *PostgresAuditLog) List(ctx context.Context, f AuditFilter) ([]AuditEvent, error) {
	q := fmt.Sprintf(`
		SELECT action, actor, link_id, submission_id, ip, user_agent, meta, created_at
		FROM %s
		WHERE ($1::text = '' OR link_id = $1::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, pgIdent(p.schema, "intake_audit_log"))

	rows, err := p.pool.Query(ctx, q, f.LinkID, clampLimit(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var (
			e    AuditEvent
			meta []byte
		)
		if err := rows.Scan(&e.Action, &e.Actor, &e.LinkID, &e.SubmissionID, &e.IP, &e.UserAgent, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
