// Package app wires configuration into a ready-to-run refresh pipeline. It is
// shared by the refresh and server commands.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/helixir/research-feed-service/internal/catalog"
	"github.com/helixir/research-feed-service/internal/config"
	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/notify"
	"github.com/helixir/research-feed-service/internal/observability"
	"github.com/helixir/research-feed-service/internal/papersources/pubmed"
	"github.com/helixir/research-feed-service/internal/pipeline"
	"github.com/helixir/research-feed-service/internal/snapshot"
)

// Service holds the wired refresh pipeline and its supporting infrastructure.
type Service struct {
	Refresher *pipeline.Refresher
	Publisher notify.Publisher

	// Categories is the catalog the refresher runs against.
	Categories []domain.Category

	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	return observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.AddSource,
		TimeFormat: cfg.TimeFormat,
	})
}

// Build creates every component a refresh run needs.
func Build(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	categories, err := catalog.Load(cfg.Pipeline.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	svc := &Service{Categories: categories}
	if cfg.Metrics.Enabled {
		svc.Registry = prometheus.NewRegistry()
		svc.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		svc.Metrics = observability.NewMetrics(cfg.Metrics.Namespace, svc.Registry)
	}

	pubmedCfg := pubmed.Config{
		BaseURL:    cfg.PubMed.BaseURL,
		APIKey:     cfg.PubMed.APIKey,
		Timeout:    cfg.PubMed.Timeout,
		RateLimit:  cfg.PubMed.RateLimit,
		BurstSize:  cfg.PubMed.BurstSize,
		MaxResults: cfg.PubMed.MaxResults,
		UserAgent:  cfg.PubMed.UserAgent,
	}
	if svc.Metrics != nil {
		pubmedCfg.Recorder = svc.Metrics
	}
	source := pubmed.New(pubmedCfg)

	assembler := pipeline.NewAssembler(source, categories, pipeline.AssemblerConfig{
		MaxResults:      cfg.PubMed.MaxResults,
		StageDelay:      cfg.Pipeline.StageDelay,
		FallbackSnippet: cfg.Pipeline.FallbackSnippet,
	}, logger, svc.Metrics)

	var recorder snapshot.WriteRecorder
	if svc.Metrics != nil {
		recorder = svc.Metrics
	}
	writer := snapshot.NewWriter(recorder, cfg.Output.DataPath, cfg.Output.PublicPath)

	svc.Publisher = notify.Noop{}
	if cfg.Kafka.Enabled {
		svc.Publisher = notify.NewKafkaPublisher(notify.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, logger)
	}

	svc.Refresher = pipeline.NewRefresher(assembler, writer, svc.Publisher, logger, svc.Metrics)

	logger.Info().
		Int("categories", len(categories)).
		Int("max_results", cfg.PubMed.MaxResults).
		Bool("api_key", cfg.PubMed.APIKey != "").
		Bool("metrics", cfg.Metrics.Enabled).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("refresh pipeline configured")

	return svc, nil
}

// Gatherer returns the metrics registry as a Gatherer, or nil when metrics are disabled.
func (s *Service) Gatherer() prometheus.Gatherer {
	if s.Registry == nil {
		return nil
	}
	return s.Registry
}

// Close releases the publisher.
func (s *Service) Close() error {
	return s.Publisher.Close()
}
