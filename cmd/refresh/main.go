// Package main provides the entry point for a single research feed refresh run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/research-feed-service/internal/app"
	"github.com/helixir/research-feed-service/internal/config"
	"github.com/helixir/research-feed-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := app.NewLogger(cfg.Logging)
	logger = logger.With().Str("component", "refresh").Logger()

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close publisher")
		}
	}()

	_, refreshErr := svc.Refresher.Refresh(ctx)
	if refreshErr != nil {
		logger.Error().Err(refreshErr).Msg("failed to refresh research feed")
	}

	// Export metrics for the node exporter even when the run failed.
	if cfg.Metrics.Enabled && cfg.Metrics.TextfilePath != "" {
		if err := observability.WriteTextfile(cfg.Metrics.TextfilePath, svc.Registry); err != nil {
			logger.Error().Err(err).Msg("failed to export metrics")
		}
	}

	return refreshErr
}
