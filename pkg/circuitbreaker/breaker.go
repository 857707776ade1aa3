// Package circuitbreaker guards calls to downstream collaborators (notification
// senders, the bus, the consumer's database work) with sony/gobreaker and
// reports through OpenTelemetry.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrOpen is returned while the breaker rejects calls
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker configuration
type Config struct {
	Name string
	// MaxRequests is the number of trial requests allowed while half-open
	MaxRequests uint32
	// Interval clears closed-state counts; zero keeps them forever
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker below MinRequests
	ConsecutiveFailures uint32
	// FailureRatio trips the breaker once MinRequests is reached
	FailureRatio float64
	MinRequests  uint32
	// Permanent reports errors that say nothing about downstream health,
	// e.g. a rejected domain transition. They count as successes.
	Permanent func(error) bool
}

// DefaultConfig returns defaults for a best-effort downstream
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         2,
		Interval:            time.Minute,
		Timeout:             15 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         20,
	}
}

// Breaker wraps gobreaker with tracing and counters
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
	tracer trace.Tracer

	calls    metric.Int64Counter
	rejected metric.Int64Counter

	mu    sync.RWMutex
	state State
}

// New creates a breaker
func New(cfg Config, logger *zap.Logger) (*Breaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter("episode/circuitbreaker")

	b := &Breaker{
		name:   cfg.Name,
		logger: logger.With(zap.String("breaker", cfg.Name)),
		tracer: otel.Tracer("episode/circuitbreaker"),
		state:  StateClosed,
	}

	var err error
	if b.calls, err = meter.Int64Counter("episode_breaker_calls_total",
		metric.WithDescription("Calls through a circuit breaker by result")); err != nil {
		return nil, fmt.Errorf("create call counter: %w", err)
	}
	if b.rejected, err = meter.Int64Counter("episode_breaker_rejected_total",
		metric.WithDescription("Calls rejected while a circuit breaker was open")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}

	permanent := cfg.Permanent
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < cfg.MinRequests {
				return c.ConsecutiveFailures >= cfg.ConsecutiveFailures
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.onStateChange(from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (permanent != nil && permanent(err))
		},
	})
	return b, nil
}

// Run executes fn unless the breaker is open, in which case it returns ErrOpen
func (b *Breaker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := b.tracer.Start(ctx, "breaker.run", trace.WithAttributes(
		attribute.String("breaker", b.name),
		attribute.String("state", string(b.State())),
	))
	defer span.End()

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	name := attribute.String("breaker", b.name)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.rejected.Add(ctx, 1, metric.WithAttributes(name))
		span.SetAttributes(attribute.Bool("circuit_open", true))
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	case err != nil:
		b.calls.Add(ctx, 1, metric.WithAttributes(name, attribute.String("result", "error")))
		span.RecordError(err)
		return err
	}
	b.calls.Add(ctx, 1, metric.WithAttributes(name, attribute.String("result", "ok")))
	return nil
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Name returns the breaker name
func (b *Breaker) Name() string { return b.name }

// Counts returns the current gobreaker counts
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

func (b *Breaker) onStateChange(from, to gobreaker.State) {
	next := mapState(to)
	b.mu.Lock()
	b.state = next
	b.mu.Unlock()

	b.logger.Warn("circuit breaker state changed",
		zap.String("from", string(mapState(from))),
		zap.String("to", string(next)))
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Registry hands out named breakers
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	logger   *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), logger: logger}
}

// Get returns the breaker called name, creating it from cfg on first use
func (r *Registry) Get(name string, cfg Config) (*Breaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b, nil
	}
	cfg.Name = name
	b, err := New(cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.breakers[name] = b
	return b, nil
}

// Health summarises one breaker for the readiness endpoint
type Health struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"failures"`
}

// Health lists every breaker sorted by name
func (r *Registry) Health() []Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Health, 0, len(r.breakers))
	for name, b := range r.breakers {
		c := b.Counts()
		out = append(out, Health{Name: name, State: b.State(), Requests: c.Requests, Failures: c.TotalFailures})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
