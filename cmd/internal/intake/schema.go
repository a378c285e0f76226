package intake

import (
	"context"
	_ "embed"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// SchemaSQL returns the DDL for the intake tables in schema.
func SchemaSQL(schema string) string {
	return strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{schema}.Sanitize())
}

// ApplySchema creates the intake tables in schema if they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil || strings.TrimSpace(schema) == "" {
		return ErrInvalidInput
	}
	_, err := pool.Exec(ctx, SchemaSQL(schema))
	return err
}
