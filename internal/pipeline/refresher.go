package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/notify"
	"github.com/helixir/research-feed-service/internal/observability"
	"github.com/helixir/research-feed-service/internal/snapshot"
)

// SnapshotBuilder assembles a snapshot. *Assembler implements it.
type SnapshotBuilder interface {
	Run(ctx context.Context) (*domain.Snapshot, error)
}

// SnapshotWriter persists a snapshot. *snapshot.Writer implements it.
type SnapshotWriter interface {
	Write(s *domain.Snapshot) error
	Paths() []string
}

// Result describes a successful refresh run.
type Result struct {
	RunID    string
	Snapshot *domain.Snapshot
	Paths    []string
	Duration time.Duration
}

// Refresher runs one complete refresh: assemble, write both copies, re-validate
// the first copy and announce the new snapshot.
type Refresher struct {
	builder   SnapshotBuilder
	writer    SnapshotWriter
	publisher notify.Publisher
	logger    zerolog.Logger
	metrics   *observability.Metrics
	validate  func(path string) error
	newRunID  func() string
}

// NewRefresher creates a Refresher. publisher and metrics may be nil.
func NewRefresher(
	builder SnapshotBuilder,
	writer SnapshotWriter,
	publisher notify.Publisher,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Refresher {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &Refresher{
		builder:   builder,
		writer:    writer,
		publisher: publisher,
		logger:    observability.WithComponent(logger, "refresher"),
		metrics:   metrics,
		validate:  snapshot.ValidateFile,
		newRunID:  func() string { return uuid.New().String() },
	}
}

// Refresh rebuilds the snapshot from scratch. Nothing is written when any
// upstream stage fails.
func (r *Refresher) Refresh(ctx context.Context) (*Result, error) {
	runID := r.newRunID()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithRunContext(r.logger, runID)

	if trigger := observability.TriggerFromContext(ctx); trigger != "" {
		logger = logger.With().Str("trigger", trigger).Logger()
	}

	start := time.Now()
	if r.metrics != nil {
		r.metrics.RecordRefreshStarted()
	}
	logger.Info().Msg("starting research feed refresh")

	result, err := r.refresh(ctx, logger, runID)
	elapsed := time.Since(start)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordRefreshFailed(elapsed.Seconds())
		}
		return nil, err
	}
	result.Duration = elapsed

	if r.metrics != nil {
		r.metrics.RecordRefreshCompleted(elapsed.Seconds(), result.Snapshot.TotalArticles(), result.Snapshot.LastUpdated)
	}

	logger.Info().
		Int("articles", result.Snapshot.TotalArticles()).
		Dur("duration", elapsed).
		Msgf("Saved %d articles to %s", result.Snapshot.TotalArticles(), strings.Join(result.Paths, " and "))

	r.announce(ctx, logger, result)
	return result, nil
}

func (r *Refresher) refresh(ctx context.Context, logger zerolog.Logger, runID string) (*Result, error) {
	snap, err := r.builder.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("assemble snapshot: %w", err)
	}

	paths := r.writer.Paths()
	if err := r.writer.Write(snap); err != nil {
		return nil, err
	}

	if len(paths) > 0 {
		err := r.validate(paths[0])
		r.recordValidation(err)
		if err != nil {
			logger.Error().Err(err).Str("path", paths[0]).Msg("written snapshot failed validation")
			return nil, fmt.Errorf("validate written snapshot: %w", err)
		}
	}

	return &Result{RunID: runID, Snapshot: snap, Paths: paths}, nil
}

// announce publishes the refresh event. The snapshot is already on disk, so
// failures are only logged.
func (r *Refresher) announce(ctx context.Context, logger zerolog.Logger, result *Result) {
	event := notify.NewSnapshotRefreshedEvent(result.RunID, result.Snapshot, result.Paths)
	if err := r.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("failed to publish refresh event")
		if r.metrics != nil {
			r.metrics.RecordNotificationFailed()
		}
		return
	}
	if _, ok := r.publisher.(notify.Noop); ok {
		return
	}
	if r.metrics != nil {
		r.metrics.RecordNotificationPublished()
	}
}

func (r *Refresher) recordValidation(err error) {
	if r.metrics == nil {
		return
	}
	var failure *domain.ValidationFailure
	switch {
	case err == nil:
		r.metrics.RecordValidation(0)
	case errors.As(err, &failure):
		r.metrics.RecordValidation(len(failure.Issues))
	default:
		r.metrics.RecordValidation(-1)
	}
}
