package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/client"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDBPool builds a pgxpool from cfg and validates connectivity.
// It does not apply the schema; see ApplySchemas.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// ApplySchemas creates the client and intake tables in schema. It is idempotent.
func ApplySchemas(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	schema = strings.TrimSpace(schema)
	if pool == nil || schema == "" {
		return fmt.Errorf("apply schemas: pool and schema are required")
	}
	if err := client.ApplySchema(ctx, pool, schema); err != nil {
		return fmt.Errorf("apply client schema: %w", err)
	}
	if err := intake.ApplySchema(ctx, pool, schema); err != nil {
		return fmt.Errorf("apply intake schema: %w", err)
	}
	return nil
}
