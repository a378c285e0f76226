package client

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresDirectory persists clients in PostgreSQL. The pool is owned by the caller.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// DirectoryOption configures PostgresDirectory.
type DirectoryOption func(*PostgresDirectory) error

// WithSchema sets the DB schema used by the directory (default: "centraqu").
func WithSchema(schema string) DirectoryOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...DirectoryOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{pool: pool, schema: "centraqu"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, ErrInvalidInput
	}
	return d, nil
}

// ApplySchema creates the clients table in schema if it does not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	sql := strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{schema}.Sanitize())
	_, err := pool.Exec(ctx, sql)
	return err
}

// Promote upserts a client keyed by normalized email. Submissions without an email always
// create a new client.
func (d *PostgresDirectory) Promote(ctx context.Context, in PromoteInput) (Result, error) {
	if d == nil || d.pool == nil {
		return Result{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	p, err := ProfileFromData(in.Data)
	if err != nil {
		return Result{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Result{}, err
	}
	profile, err := json.Marshal(in.Data)
	if err != nil {
		return Result{}, ErrInvalidInput
	}
	var emailNorm *string
	if p.Email != nil {
		n := NormalizeEmail(*p.Email)
		emailNorm = &n
	}

	clients := pgIdent(d.schema, "clients")
	row := d.pool.QueryRow(ctx,
		`INSERT INTO `+clients+` AS c (
		     id, name, email, email_norm, phone, address, industry, contact_person,
		     profile, source_submission_id, created_by, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $12)
		 ON CONFLICT (email_norm) DO UPDATE
		    SET name = EXCLUDED.name,
		        email = EXCLUDED.email,
		        phone = COALESCE(EXCLUDED.phone, c.phone),
		        address = COALESCE(EXCLUDED.address, c.address),
		        industry = COALESCE(EXCLUDED.industry, c.industry),
		        contact_person = COALESCE(EXCLUDED.contact_person, c.contact_person),
		        profile = c.profile || EXCLUDED.profile,
		        source_submission_id = EXCLUDED.source_submission_id,
		        updated_at = EXCLUDED.updated_at
		RETURNING `+clientColumns+`, (xmax = 0) AS created`,
		id,
		p.Name,
		p.Email,
		emailNorm,
		p.Phone,
		p.Address,
		p.Industry,
		p.ContactPerson,
		string(profile),
		strPtr(in.SubmissionID),
		strPtr(in.PromotedBy),
		now,
	)

	var out Result
	var rawProfile []byte
	err = row.Scan(append(clientDest(&out.Client, &rawProfile), &out.Created)...)
	if err != nil {
		return Result{}, err
	}
	if err := decodeProfile(rawProfile, &out.Client); err != nil {
		return Result{}, err
	}
	return out, nil
}

// Get returns a client by id.
func (d *PostgresDirectory) Get(ctx context.Context, id string) (Client, error) {
	if d == nil || d.pool == nil {
		return Client{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Client{}, err
	}
	clients := pgIdent(d.schema, "clients")

	var out Client
	var rawProfile []byte
	err := d.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM `+clients+` WHERE id = $1`, id,
	).Scan(clientDest(&out, &rawProfile)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, err
	}
	if err := decodeProfile(rawProfile, &out); err != nil {
		return Client{}, err
	}
	return out, nil
}

const clientColumns = `id, name, email, phone, address, industry, contact_person, profile,
		       source_submission_id, created_by, created_at, updated_at`

func clientDest(c *Client, rawProfile *[]byte) []any {
	return []any{
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Address,
		&c.Industry,
		&c.ContactPerson,
		rawProfile,
		&c.SourceSubmissionID,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func decodeProfile(raw []byte, c *Client) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &c.Profile)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
