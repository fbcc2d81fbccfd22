// Package observability provides logging and metrics support for the research
// feed service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for refresh runs, upstream requests, and snapshot output
//   - Context helpers for propagating run identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger = observability.WithRunContext(logger, runID)
//	logger.Info().Int("articles", n).Msg("snapshot written")
//
// # Metrics
//
// Metrics register on a caller-supplied registry so batch runs and the
// long-running server can each own one:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics("research_feed", reg)
//	metrics.RecordRefreshStarted()
//
// A batch run can leave its metrics for the node exporter textfile collector:
//
//	err := observability.WriteTextfile("/var/lib/node_exporter/research_feed.prom", reg)
//
// # Standard Fields
//
//   - run_id: refresh run identifier
//   - category: catalog category id
//   - query: upstream search expression
//   - stage: pipeline stage (search, summaries, abstracts)
//   - component: emitting component
package observability
