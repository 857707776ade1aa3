// Package workerpool runs typed jobs on a bounded set of goroutines with
// linear-backoff retries. It backs asynchronous notification delivery and
// the check-in consumer's record fan-out.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrStopped is returned when submitting to a stopped pool
	ErrStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned when the queue has no room
	ErrQueueFull = errors.New("worker pool queue full")
)

// Handler processes one job
type Handler[T any] func(ctx context.Context, job T) error

// Config holds worker pool configuration
type Config struct {
	Name       string
	Workers    int
	QueueSize  int
	MaxRetries int
	// RetryDelay grows linearly with the attempt number
	RetryDelay      time.Duration
	ShutdownTimeout time.Duration
	// Permanent reports errors that must not be retried
	Permanent func(error) bool
}

// DefaultConfig returns defaults sized for notification fan-out
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		Workers:         4,
		QueueSize:       1024,
		MaxRetries:      2,
		RetryDelay:      200 * time.Millisecond,
		ShutdownTimeout: 10 * time.Second,
	}
}

type envelope[T any] struct {
	ctx  context.Context
	job  T
	done chan error
}

// Pool is a bounded worker pool
type Pool[T any] struct {
	cfg     Config
	handler Handler[T]
	logger  *zap.Logger

	queue chan envelope[T]
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	stop    chan struct{}

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// New creates a pool. Call Start before submitting.
func New[T any](cfg Config, h Handler[T], logger *zap.Logger) (*Pool[T], error) {
	if h == nil {
		return nil, fmt.Errorf("worker handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig(cfg.Name)
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	return &Pool[T]{
		cfg:     cfg,
		handler: h,
		logger:  logger.With(zap.String("pool", cfg.Name)),
		queue:   make(chan envelope[T], cfg.QueueSize),
		stop:    make(chan struct{}),
	}, nil
}

// Start launches the workers
func (p *Pool[T]) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_size", p.cfg.QueueSize))
}

// Submit enqueues a job without waiting for it. The job runs with a context
// detached from ctx's cancellation so it can outlive a finished request.
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	return p.enqueue(envelope[T]{ctx: context.WithoutCancel(ctx), job: job})
}

// Do enqueues a job and waits for its final outcome
func (p *Pool[T]) Do(ctx context.Context, job T) error {
	done := make(chan error, 1)
	if err := p.enqueue(envelope[T]{ctx: ctx, job: job, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) enqueue(e envelope[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- e:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs, drains the queue and waits up to the shutdown timeout
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.cfg.ShutdownTimeout):
		close(p.stop)
		p.logger.Warn("worker pool shutdown timed out", zap.Int("pending", len(p.queue)))
	}
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for e := range p.queue {
		err := p.run(e.ctx, e.job)
		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("job failed", zap.Error(err))
		} else {
			p.succeeded.Add(1)
		}
		if e.done != nil {
			e.done <- err
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, job T) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = p.handler(ctx, job); err == nil {
			return nil
		}
		if p.cfg.Permanent != nil && p.cfg.Permanent(err) {
			return err
		}
		if attempt >= p.cfg.MaxRetries {
			break
		}
		p.retried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return err
		case <-time.After(p.cfg.RetryDelay * time.Duration(attempt+1)):
		}
	}
	if p.cfg.MaxRetries > 0 {
		return fmt.Errorf("after %d retries: %w", p.cfg.MaxRetries, err)
	}
	return err
}

// Stats is a snapshot of pool counters
type Stats struct {
	Submitted     int64 `json:"submitted"`
	Succeeded     int64 `json:"succeeded"`
	Failed        int64 `json:"failed"`
	Retried       int64 `json:"retried"`
	QueueDepth    int   `json:"queue_depth"`
	QueueCapacity int   `json:"queue_capacity"`
	Workers       int   `json:"workers"`
}

// Stats returns current pool counters
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Submitted:     p.submitted.Load(),
		Succeeded:     p.succeeded.Load(),
		Failed:        p.failed.Load(),
		Retried:       p.retried.Load(),
		QueueDepth:    len(p.queue),
		QueueCapacity: p.cfg.QueueSize,
		Workers:       p.cfg.Workers,
	}
}

// IsHealthy reports whether the queue is below 90% full
func (p *Pool[T]) IsHealthy() bool {
	s := p.Stats()
	return float64(s.QueueDepth)/float64(s.QueueCapacity) < 0.9
}
