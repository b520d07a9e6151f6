package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/kopihq/kopi/api"
	"github.com/kopihq/kopi/internal/app"
	"github.com/kopihq/kopi/internal/config"
)

// runServe initializes the application and serves the HTTP gateway until
// SIGINT or SIGTERM.
func runServe() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := parseServeAddr(cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting kopi gateway", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server := api.NewServer(a.Orchestrator, a.Vector, a.Structured, a.DBPool, a.Auth, logger)
	return server.Run(ctx, addr)
}

// runMigrate applies database migrations and exits.
func runMigrate() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return migrateDatabase(cfg, logger)
}
