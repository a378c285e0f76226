package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists links and submissions in PostgreSQL.
//
// The pgx pool is owned by the caller; Close is a no-op.
// The guarded increment is a single conditional UPDATE inside the same transaction as the
// submission insert, so concurrent consumers of one link serialize on its row lock.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "centraqu").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "centraqu"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error { return nil }

const linkColumns = `id, token_hash, access_code_hash, is_active, expires_at, max_uses, current_uses,
		       related_audit_id, related_project_id, notes, metadata, created_by,
		       created_at, updated_at, last_accessed_at`

const submissionColumns = `id, link_id, submission_data, submitted_at, ip_address, user_agent, status,
		       reviewed_by, reviewed_at, notes, rejection_reason`

// CreateLink inserts a new link record.
func (s *PostgresStore) CreateLink(ctx context.Context, in CreateLinkRecord) (Link, error) {
	const op = "intake.PostgresStore.CreateLink"
	if s == nil || s.pool == nil {
		return Link{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.TokenHash) == "" || in.AccessCodeHash == "" {
		return Link{}, invalid(op, "id, token hash and access code hash are required")
	}
	if in.MaxUses <= 0 {
		return Link{}, invalid(op, "max uses must be positive")
	}
	meta, err := encodeJSON(in.Metadata)
	if err != nil {
		return Link{}, invalid(op, "metadata is not valid JSON")
	}

	links := pgIdent(s.schema, "intake_links")
	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+links+` (
		     id, token_hash, access_code_hash, is_active, expires_at, max_uses, current_uses,
		     related_audit_id, related_project_id, notes, metadata, created_by, created_at, updated_at
		   ) VALUES ($1, $2, $3, true, $4, $5, 0, $6, $7, $8, $9::jsonb, $10, $11, $11)
		RETURNING `+linkColumns,
		in.ID,
		in.TokenHash,
		in.AccessCodeHash,
		in.ExpiresAt,
		in.MaxUses,
		in.RelatedAuditID,
		in.RelatedProjectID,
		in.Notes,
		meta,
		in.CreatedBy,
		in.Now,
	)
	l, err := scanLink(row)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Link{}, invalid(op, "duplicate link")
		}
		return Link{}, err
	}
	return l, nil
}

// GetLink fetches a link by id.
func (s *PostgresStore) GetLink(ctx context.Context, id string) (Link, error) {
	if s == nil || s.pool == nil {
		return Link{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	links := pgIdent(s.schema, "intake_links")
	l, err := scanLink(s.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM `+links+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	return l, err
}

// GetLinkByTokenHash fetches a link by token hash.
func (s *PostgresStore) GetLinkByTokenHash(ctx context.Context, tokenHash string) (Link, error) {
	if s == nil || s.pool == nil {
		return Link{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Link{}, ErrInvalidInput
	}
	links := pgIdent(s.schema, "intake_links")
	l, err := scanLink(s.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM `+links+` WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	return l, err
}

// ListLinks returns links newest first. The status filter is translated into the same
// predicates StatusAt applies, evaluated at f.Now.
func (s *PostgresStore) ListLinks(ctx context.Context, f LinkFilter) ([]Link, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := f.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	switch f.Status {
	case "":
	case StatusRevoked:
		where = append(where, "NOT is_active")
	case StatusExpired:
		where = append(where, "is_active AND expires_at < "+arg(now))
	case StatusExhausted:
		where = append(where, "is_active AND expires_at >= "+arg(now)+" AND current_uses >= max_uses")
	case StatusActive:
		where = append(where, "is_active AND expires_at >= "+arg(now)+" AND current_uses < max_uses")
	default:
		return nil, ErrInvalidInput
	}
	if f.RelatedAuditID != "" {
		where = append(where, "related_audit_id = "+arg(f.RelatedAuditID))
	}
	if f.RelatedProjectID != "" {
		where = append(where, "related_project_id = "+arg(f.RelatedProjectID))
	}

	q := `SELECT ` + linkColumns + ` FROM ` + pgIdent(s.schema, "intake_links")
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(clampLimit(f.Limit))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// TouchLink records an access attempt.
func (s *PostgresStore) TouchLink(ctx context.Context, id string, now time.Time) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	links := pgIdent(s.schema, "intake_links")
	tag, err := s.pool.Exec(ctx, `UPDATE `+links+` SET last_accessed_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLink applies a staff edit.
func (s *PostgresStore) UpdateLink(ctx context.Context, in UpdateLinkRecord) (Link, error) {
	const op = "intake.PostgresStore.UpdateLink"
	if s == nil || s.pool == nil {
		return Link{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	meta, err := encodeJSON(in.Metadata)
	if err != nil {
		return Link{}, invalid(op, "metadata is not valid JSON")
	}
	links := pgIdent(s.schema, "intake_links")
	l, err := scanLink(s.pool.QueryRow(ctx,
		`UPDATE `+links+`
		    SET is_active = CASE WHEN $2::boolean THEN false ELSE is_active END,
		        notes = CASE WHEN $3::boolean THEN $4::text ELSE notes END,
		        metadata = CASE WHEN $5::boolean THEN $6::jsonb ELSE metadata END,
		        updated_at = $7
		  WHERE id = $1
		RETURNING `+linkColumns,
		in.ID,
		in.Deactivate,
		in.SetNotes,
		in.Notes,
		in.Metadata != nil,
		meta,
		in.Now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	return l, err
}

// DeleteLink removes a link without submissions.
func (s *PostgresStore) DeleteLink(ctx context.Context, id string) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	links := pgIdent(s.schema, "intake_links")
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+links+` WHERE id = $1`, id)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return ErrLinkInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeAndCreateSubmission increments current_uses under the status guard and inserts the
// submission in one transaction.
func (s *PostgresStore) ConsumeAndCreateSubmission(ctx context.Context, in SubmitRecord) (Submission, Link, error) {
	const op = "intake.PostgresStore.ConsumeAndCreateSubmission"
	if s == nil || s.pool == nil {
		return Submission{}, Link{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Submission{}, Link{}, err
	}
	if in.LinkID == "" || in.SubmissionID == "" {
		return Submission{}, Link{}, invalid(op, "link id and submission id are required")
	}
	data, err := encodeJSON(in.Data)
	if err != nil || data == nil {
		return Submission{}, Link{}, invalid(op, "submission data is not valid JSON")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Submission{}, Link{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	links := pgIdent(s.schema, "intake_links")
	subs := pgIdent(s.schema, "intake_submissions")

	l, err := scanLink(tx.QueryRow(ctx,
		`UPDATE `+links+`
		    SET current_uses = current_uses + 1,
		        updated_at = $2
		  WHERE id = $1
		    AND is_active
		    AND expires_at >= $2
		    AND current_uses < max_uses
		RETURNING `+linkColumns,
		in.LinkID,
		in.Now,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, Link{}, err
		}
		return Submission{}, Link{}, s.diagnoseGuardTx(ctx, tx, in.LinkID, in.Now)
	}

	sub, err := scanSubmission(tx.QueryRow(ctx,
		`INSERT INTO `+subs+` (
		     id, link_id, submission_data, submitted_at, ip_address, user_agent, status
		   ) VALUES ($1, $2, $3::jsonb, $4, $5, $6, 'pending')
		RETURNING `+submissionColumns,
		in.SubmissionID,
		in.LinkID,
		data,
		in.Now,
		in.IPAddress,
		in.UserAgent,
	))
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Submission{}, Link{}, invalid(op, "duplicate submission id")
		}
		return Submission{}, Link{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Submission{}, Link{}, err
	}
	return sub, l, nil
}

// diagnoseGuardTx explains why the guarded UPDATE matched no row.
func (s *PostgresStore) diagnoseGuardTx(ctx context.Context, tx pgx.Tx, linkID string, now time.Time) error {
	links := pgIdent(s.schema, "intake_links")
	cur, err := scanLink(tx.QueryRow(ctx, `SELECT `+linkColumns+` FROM `+links+` WHERE id = $1`, linkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidLink
		}
		return err
	}
	if kind := StatusAt(cur, now).Err(); kind != nil {
		return kind
	}
	// Active on re-read but the guard refused: a concurrent consumer held the last unit.
	return ErrExhausted
}

// GetSubmission fetches a submission by id.
func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	if s == nil || s.pool == nil {
		return Submission{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	subs := pgIdent(s.schema, "intake_submissions")
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM `+subs+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	return sub, err
}

// ListSubmissions returns submissions newest first.
func (s *PostgresStore) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.LinkID != "" {
		where = append(where, "link_id = "+arg(f.LinkID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}

	q := `SELECT ` + submissionColumns + ` FROM ` + pgIdent(s.schema, "intake_submissions")
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY submitted_at DESC, id DESC LIMIT ` + arg(clampLimit(f.Limit))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// TransitionSubmission applies a review only while status = pending.
func (s *PostgresStore) TransitionSubmission(ctx context.Context, in ReviewRecord) (Submission, error) {
	if s == nil || s.pool == nil {
		return Submission{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	if !in.Status.Terminal() {
		return Submission{}, invalid("intake.PostgresStore.TransitionSubmission", "target status must be terminal")
	}
	subs := pgIdent(s.schema, "intake_submissions")
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`UPDATE `+subs+`
		    SET status = $2,
		        reviewed_by = $3,
		        reviewed_at = $4,
		        notes = $5,
		        rejection_reason = $6
		  WHERE id = $1
		    AND status = 'pending'
		RETURNING `+submissionColumns,
		in.SubmissionID,
		string(in.Status),
		in.ReviewedBy,
		in.ReviewedAt,
		in.Notes,
		in.RejectionReason,
	))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, err
	}
	return Submission{}, s.missingOrReviewed(ctx, in.SubmissionID)
}

// RevertApproval returns the matching approved submission to pending.
func (s *PostgresStore) RevertApproval(ctx context.Context, in RevertRecord) (Submission, error) {
	if s == nil || s.pool == nil {
		return Submission{}, ErrInvalidInput
	}
	subs := pgIdent(s.schema, "intake_submissions")
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`UPDATE `+subs+`
		    SET status = 'pending',
		        reviewed_by = NULL,
		        reviewed_at = NULL,
		        notes = NULL,
		        rejection_reason = NULL
		  WHERE id = $1
		    AND status = 'approved'
		    AND reviewed_by = $2
		    AND reviewed_at = $3
		RETURNING `+submissionColumns,
		in.SubmissionID,
		in.ReviewedBy,
		in.ReviewedAt,
	))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, err
	}
	return Submission{}, s.missingOrReviewed(ctx, in.SubmissionID)
}

func (s *PostgresStore) missingOrReviewed(ctx context.Context, id string) error {
	subs := pgIdent(s.schema, "intake_submissions")
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+subs+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyReviewed
}

func scanLink(row pgx.Row) (Link, error) {
	var l Link
	var meta []byte
	err := row.Scan(
		&l.ID,
		&l.TokenHash,
		&l.AccessCodeHash,
		&l.IsActive,
		&l.ExpiresAt,
		&l.MaxUses,
		&l.CurrentUses,
		&l.RelatedAuditID,
		&l.RelatedProjectID,
		&l.Notes,
		&meta,
		&l.CreatedBy,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.LastAccessedAt,
	)
	if err != nil {
		return Link{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &l.Metadata); err != nil {
			return Link{}, err
		}
	}
	return l, nil
}

func scanSubmission(row pgx.Row) (Submission, error) {
	var sub Submission
	var data []byte
	var status string
	err := row.Scan(
		&sub.ID,
		&sub.LinkID,
		&data,
		&sub.SubmittedAt,
		&sub.IPAddress,
		&sub.UserAgent,
		&status,
		&sub.ReviewedBy,
		&sub.ReviewedAt,
		&sub.Notes,
		&sub.RejectionReason,
	)
	if err != nil {
		return Submission{}, err
	}
	sub.Status = SubmissionStatus(status)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &sub.Data); err != nil {
			return Submission{}, err
		}
	}
	return sub, nil
}

// encodeJSON returns nil for a nil map so the column stays NULL.
func encodeJSON(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
