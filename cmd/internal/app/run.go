package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the entrypoint used by cmd/centraqu.
// It returns an error instead of calling os.Exit so defers still run.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := ValidateSecurityConfig(cfg); err != nil {
		log.Error("security.config.invalid", "err", err)
		return err
	}

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
