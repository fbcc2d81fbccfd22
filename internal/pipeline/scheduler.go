package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-feed-service/internal/observability"
)

// ErrRefreshInProgress is returned when a refresh is requested while another
// one is still running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Trigger values attached to the run context.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// refreshFunc matches (*Refresher).Refresh.
type refreshFunc func(ctx context.Context) (*Result, error)

// Scheduler serializes refresh runs and optionally repeats them on an interval.
type Scheduler struct {
	refresh refreshFunc
	logger  zerolog.Logger

	running sync.Mutex

	mu   sync.RWMutex
	last *Result
}

// NewScheduler wraps a Refresher.
func NewScheduler(r *Refresher, logger zerolog.Logger) *Scheduler {
	return newScheduler(r.Refresh, logger)
}

func newScheduler(fn refreshFunc, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		refresh: fn,
		logger:  observability.WithComponent(logger, "scheduler"),
	}
}

// TryRefresh runs one refresh unless another is in progress, in which case it
// returns ErrRefreshInProgress immediately.
func (s *Scheduler) TryRefresh(ctx context.Context, trigger string) (*Result, error) {
	if !s.running.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.running.Unlock()

	result, err := s.refresh(observability.WithTrigger(ctx, trigger))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return result, nil
}

// Last returns the most recent successful run, or nil.
func (s *Scheduler) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run refreshes once immediately and then every interval until ctx is done.
// A non-positive interval disables scheduling and Run returns at once.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info().Msg("scheduled refresh disabled")
		return
	}

	s.logger.Info().Dur("interval", interval).Msg("starting scheduled refresh")
	s.runOnce(ctx, TriggerStartup)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduled refresh stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, TriggerSchedule)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, trigger string) {
	_, err := s.TryRefresh(ctx, trigger)
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshInProgress):
		s.logger.Warn().Str("trigger", trigger).Msg("skipping refresh, previous run still in progress")
	case ctx.Err() != nil:
	default:
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("failed to refresh research feed")
	}
}
