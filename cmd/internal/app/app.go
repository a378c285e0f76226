// Package app wires the CentraQu intake server runtime: config, logging, storage, metrics
// and HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/client"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake"
	intakeapi "github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake/api"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/security/accesscode"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the server runtime: it owns the HTTP server and its storage dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry    *prometheus.Registry
	httpMetrics *HTTPMetrics

	intake *intakeapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	backend, err := newBackend(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := newApp(cfg, log, backend)
	if err != nil {
		_ = backend.lifecycle.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func newApp(cfg Config, log Logger, b backend) (*App, error) {
	var reg *prometheus.Registry
	if cfg.MetricsEnabled {
		reg = NewRegistry()
	}
	// A typed nil registry must not reach the constructors as a non-nil Registerer.
	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}

	intakeMetrics, err := intake.NewMetrics(registerer)
	if err != nil {
		return nil, err
	}
	httpMetrics, err := NewHTTPMetrics(registerer)
	if err != nil {
		return nil, err
	}

	apiCfg := intakeapi.LoadConfigFromEnv()
	codes, err := accesscode.FromEnv()
	if err != nil {
		return nil, err
	}

	svc, err := intake.NewService(b.store, b.directory,
		intake.WithLimits(apiCfg.Limits()),
		intake.WithAccessCodeConfig(codes),
		intake.WithMetrics(intakeMetrics),
	)
	if err != nil {
		return nil, err
	}

	handler, err := intakeapi.NewHandler(log, svc, apiCfg, intakeapi.WithAuditLog(b.audit))
	if err != nil {
		return nil, err
	}
	if len(apiCfg.StaffTokens) == 0 {
		log.Warn("intake.staff.disabled", "reason", "no CENTRAQU_STAFF_TOKENS configured")
	}

	return &App{
		cfg:         cfg,
		log:         log,
		store:       b.lifecycle,
		dbPool:      b.pool,
		dbEnabled:   b.pool != nil,
		registry:    reg,
		httpMetrics: httpMetrics,
		intake:      handler,
	}, nil
}

// Handler returns the full middleware-wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.intake)

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithRecovery(h, a.log)
	return WithRequestLogging(h, a.log, a.httpMetrics)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"metrics_enabled", a.registry != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.store.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// backend bundles the storage collaborators chosen from config.
type backend struct {
	lifecycle Store
	pool      *pgxpool.Pool
	store     intake.Store
	directory intake.Promoter
	audit     intake.AuditLog
}

func memoryBackend() backend {
	return backend{
		lifecycle: nopStore{},
		store:     intake.NewInMemoryStore(),
		directory: client.NewMemoryDirectory(),
		audit:     intake.NewMemoryAuditLog(),
	}
}

// newBackend decides between Postgres-backed persistence and the in-memory dev store.
func newBackend(ctx context.Context, cfg Config, log Logger) (backend, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return memoryBackend(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return backend{}, err
	}

	if err := ApplySchemas(ctx, pool, cfg.DBSchema); err != nil {
		pool.Close()
		return backend{}, err
	}

	// The app owns the pool; the stores only borrow it.
	st, err := intake.NewPostgresStore(pool, intake.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return backend{}, err
	}
	dir, err := client.NewPostgresDirectory(pool, client.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return backend{}, err
	}

	audit, err := intake.NewPostgresAuditLog(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return backend{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	return backend{
		lifecycle: dbStore{pool: pool, store: st},
		pool:      pool,
		store:     st,
		directory: dir,
		audit:     audit,
	}, nil
}

type dbStore struct {
	pool  *pgxpool.Pool
	store *intake.PostgresStore
}

func (s dbStore) Close(_ context.Context) error {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
