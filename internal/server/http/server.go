// Package httpserver serves the published research feed snapshot over HTTP
// and exposes health, metrics and manual refresh endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/observability"
	"github.com/helixir/research-feed-service/internal/pipeline"
)

// SnapshotRoute is where the public snapshot copy is served.
const SnapshotRoute = "/data/research.json"

// RefreshTrigger runs a refresh on demand. *pipeline.Scheduler implements it.
type RefreshTrigger interface {
	TryRefresh(ctx context.Context, trigger string) (*pipeline.Result, error)
	Last() *pipeline.Result
}

// Server is the snapshot HTTP server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	snapshotPath string
	fallback     []domain.CategoryArticles
	refresher    RefreshTrigger
	gatherer     prometheus.Gatherer
	metricsPath  string
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// SnapshotPath is the file served at SnapshotRoute.
	SnapshotPath string

	// Categories are returned with no articles while no snapshot exists.
	Categories []domain.Category

	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
}

// NewServer creates a new HTTP server. refresher, gatherer and metrics may be
// nil; the corresponding endpoints are then not mounted or not recorded.
func NewServer(
	cfg Config,
	refresher RefreshTrigger,
	gatherer prometheus.Gatherer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		snapshotPath: cfg.SnapshotPath,
		fallback:     domain.FallbackCategories(cfg.Categories),
		refresher:    refresher,
		gatherer:     gatherer,
		metricsPath:  cfg.MetricsPath,
		metrics:      metrics,
		logger:       logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogMiddleware(s.logger))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Get(SnapshotRoute, s.snapshotHandler)
	r.Head(SnapshotRoute, s.snapshotHandler)

	if s.refresher != nil {
		r.Post("/refresh", s.refreshHandler)
	}
	if s.gatherer != nil && s.metricsPath != "" {
		r.Handle(s.metricsPath, observability.Handler(s.gatherer))
	}

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
