// Package main provides the entry point for the research feed snapshot server.
// It serves the public snapshot copy and, when configured, refreshes it on a
// fixed interval.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/helixir/research-feed-service/internal/app"
	"github.com/helixir/research-feed-service/internal/config"
	"github.com/helixir/research-feed-service/internal/pipeline"
	httpserver "github.com/helixir/research-feed-service/internal/server/http"
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
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("research-feed-service server starting")

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

	scheduler := pipeline.NewScheduler(svc.Refresher, logger)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SnapshotPath:    cfg.Output.PublicPath,
		Categories:      svc.Categories,
	}
	if cfg.Metrics.Enabled {
		httpCfg.MetricsPath = cfg.Metrics.Path
	}
	httpSrv := httpserver.NewServer(httpCfg, scheduler, svc.Gatherer(), svc.Metrics, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx, cfg.Server.RefreshInterval)
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Str("snapshot_path", httpCfg.SnapshotPath).
		Dur("refresh_interval", cfg.Server.RefreshInterval).
		Msg("research-feed-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		stop()
		wg.Wait()
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down research-feed-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Let an in-flight refresh observe cancellation before exiting.
	wg.Wait()

	logger.Info().Msg("research-feed-service stopped")
	return nil
}
