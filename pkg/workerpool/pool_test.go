package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig("test")
	cfg.Workers = 2
	cfg.QueueSize = 8
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	p, err := New(fastConfig(), func(ctx context.Context, n int) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Do(context.Background(), 1))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(2), p.Stats().Retried)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	permanent := errors.New("no recipient")
	cfg := fastConfig()
	cfg.Permanent = func(err error) bool { return errors.Is(err, permanent) }

	var calls atomic.Int32
	p, err := New(cfg, func(ctx context.Context, s string) error {
		calls.Add(1)
		return permanent
	}, nil)
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	assert.ErrorIs(t, p.Do(context.Background(), "x"), permanent)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestSubmitRunsAfterRequestContextEnds(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	p, err := New(fastConfig(), func(ctx context.Context, s string) error {
		defer wg.Done()
		return ctx.Err()
	}, nil)
	require.NoError(t, err)
	p.Start()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Submit(ctx, "job"))
	cancel()

	wg.Wait()
	p.Stop()
	assert.Equal(t, int64(1), p.Stats().Succeeded)
}

func TestSubmitAfterStop(t *testing.T) {
	p, err := New(fastConfig(), func(context.Context, int) error { return nil }, nil)
	require.NoError(t, err)
	p.Start()
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(context.Background(), 1), ErrStopped)
}

func TestQueueFull(t *testing.T) {
	cfg := fastConfig()
	cfg.QueueSize = 1
	p, err := New(cfg, func(context.Context, int) error { return nil }, nil)
	require.NoError(t, err)

	require.NoError(t, p.Submit(context.Background(), 1))
	assert.ErrorIs(t, p.Submit(context.Background(), 2), ErrQueueFull)
	assert.False(t, p.IsHealthy())
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New[int](fastConfig(), nil, nil)
	assert.Error(t, err)
}
