package gherkit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRequiresCallback(t *testing.T) {
	s := NewDefaultRunScheduler(time.Hour, true, log.NewLogger(log.DiscardHandler()))
	err := s.Start(context.Background())
	require.ErrorContains(t, err, "callback must be registered")
}

func TestSchedulerRunOnce(t *testing.T) {
	s := NewDefaultRunScheduler(0, true, log.NewLogger(log.DiscardHandler()))

	var calls atomic.Int32
	s.RegisterCallback(func() error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	// No periodic goroutine in run-once mode
	require.NoError(t, s.WaitForShutdown(context.Background()))
}

func TestSchedulerRunOncePropagatesError(t *testing.T) {
	s := NewDefaultRunScheduler(0, true, log.NewLogger(log.DiscardHandler()))

	want := errors.New("run failed")
	s.RegisterCallback(func() error { return want })

	err := s.Start(context.Background())
	require.ErrorIs(t, err, want)
}

func TestSchedulerContinuousRunsPeriodically(t *testing.T) {
	s := NewDefaultRunScheduler(10*time.Millisecond, false, log.NewLogger(log.DiscardHandler()))

	var calls atomic.Int32
	s.RegisterCallback(func() error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.True(t, s.Stopped())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitForShutdown(ctx))
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewDefaultRunScheduler(time.Hour, false, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func() error { return nil })

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.True(t, s.Stopped())
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	s := NewDefaultRunScheduler(time.Hour, false, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func() error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, s.Stopped, 2*time.Second, 5*time.Millisecond)
}
