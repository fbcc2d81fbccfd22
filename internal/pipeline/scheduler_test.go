package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-feed-service/internal/observability"
)

func TestScheduler_TryRefresh(t *testing.T) {
	var trigger string
	s := newScheduler(func(ctx context.Context) (*Result, error) {
		trigger = observability.TriggerFromContext(ctx)
		return &Result{RunID: "run-1"}, nil
	}, zerolog.New(io.Discard))

	assert.Nil(t, s.Last())

	result, err := s.TryRefresh(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, TriggerManual, trigger)
	assert.Same(t, result, s.Last())
}

func TestScheduler_TryRefresh_FailureKeepsLast(t *testing.T) {
	calls := 0
	s := newScheduler(func(context.Context) (*Result, error) {
		calls++
		if calls == 1 {
			return &Result{RunID: "good"}, nil
		}
		return nil, errors.New("upstream down")
	}, zerolog.New(io.Discard))

	_, err := s.TryRefresh(context.Background(), TriggerManual)
	require.NoError(t, err)
	_, err = s.TryRefresh(context.Background(), TriggerManual)
	require.Error(t, err)

	require.NotNil(t, s.Last())
	assert.Equal(t, "good", s.Last().RunID)
}

func TestScheduler_TryRefresh_RejectsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newScheduler(func(context.Context) (*Result, error) {
		close(started)
		<-release
		return &Result{}, nil
	}, zerolog.New(io.Discard))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.TryRefresh(context.Background(), TriggerSchedule)
	}()

	<-started
	_, err := s.TryRefresh(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	close(release)
	wg.Wait()
}

func TestScheduler_Run(t *testing.T) {
	t.Run("disabled interval returns immediately", func(t *testing.T) {
		var calls atomic.Int32
		s := newScheduler(func(context.Context) (*Result, error) {
			calls.Add(1)
			return &Result{}, nil
		}, zerolog.New(io.Discard))

		s.Run(context.Background(), 0)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("runs at start and on every tick", func(t *testing.T) {
		var calls atomic.Int32
		var triggers sync.Map
		s := newScheduler(func(ctx context.Context) (*Result, error) {
			calls.Add(1)
			triggers.Store(observability.TriggerFromContext(ctx), true)
			return &Result{}, nil
		}, zerolog.New(io.Discard))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx, 20*time.Millisecond)
			close(done)
		}()

		require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after cancellation")
		}

		_, startup := triggers.Load(TriggerStartup)
		_, scheduled := triggers.Load(TriggerSchedule)
		assert.True(t, startup)
		assert.True(t, scheduled)
	})
}
