// Package notification renders episode templates and delivers them to
// patients. Delivery is best-effort: callers log failures and move on.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/circuitbreaker"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/workerpool"
)

// OutboundTopic carries rendered messages for the mail gateway
const OutboundTopic = "notification.outbound"

// Dispatcher sends a templated message to a recipient
type Dispatcher interface {
	Send(ctx context.Context, recipient, templateID string, data map[string]string) error
}

// Message is a rendered notification
type Message struct {
	ID         string            `json:"id"`
	TemplateID string            `json:"template_id"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Sender delivers a rendered message over some channel
type Sender interface {
	Deliver(ctx context.Context, m Message) error
}

// Service renders templates and hands them to a Sender behind a breaker
type Service struct {
	engine  *Engine
	sender  Sender
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewService creates a synchronous dispatcher. breaker may be nil.
func NewService(engine *Engine, sender Sender, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = NewEngine()
	}
	return &Service{engine: engine, sender: sender, breaker: breaker, logger: logger}
}

// Send renders and delivers one message
func (s *Service) Send(ctx context.Context, recipient, templateID string, data map[string]string) error {
	if recipient == "" {
		return apperr.New(apperr.Validation, "recipient is required")
	}
	subject, body, err := s.engine.Render(templateID, data)
	if err != nil {
		return err
	}
	msg := Message{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}

	deliver := func(ctx context.Context) error { return s.sender.Deliver(ctx, msg) }
	if s.breaker != nil {
		err = s.breaker.Run(ctx, deliver)
	} else {
		err = deliver(ctx)
	}
	if err != nil {
		return fmt.Errorf("deliver %s: %w", templateID, err)
	}
	s.logger.Debug("notification sent",
		zap.String("template", templateID),
		zap.String("message_id", msg.ID))
	return nil
}

type job struct {
	recipient  string
	templateID string
	data       map[string]string
}

// Async queues sends on a worker pool so request paths never wait on delivery
type Async struct {
	pool *workerpool.Pool[job]
}

// NewAsync wraps next with a started worker pool. Stop it on shutdown.
func NewAsync(next Dispatcher, cfg workerpool.Config, logger *zap.Logger) (*Async, error) {
	if cfg.Permanent == nil {
		cfg.Permanent = permanent
	}
	pool, err := workerpool.New(cfg, func(ctx context.Context, j job) error {
		return next.Send(ctx, j.recipient, j.templateID, j.data)
	}, logger)
	if err != nil {
		return nil, err
	}
	pool.Start()
	return &Async{pool: pool}, nil
}

// Send enqueues the message and returns immediately
func (a *Async) Send(ctx context.Context, recipient, templateID string, data map[string]string) error {
	return a.pool.Submit(ctx, job{recipient: recipient, templateID: templateID, data: data})
}

// Stats exposes the underlying pool counters
func (a *Async) Stats() workerpool.Stats { return a.pool.Stats() }

// Stop drains queued sends
func (a *Async) Stop() { a.pool.Stop() }

// rendering and validation errors will not improve with retries, nor will an open breaker
func permanent(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return true
	}
	switch apperr.KindOf(err) {
	case apperr.Validation, apperr.NotFound:
		return true
	}
	return false
}

// LogSender writes messages to the log instead of delivering them
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Deliver(_ context.Context, m Message) error {
	l.logger.Info("notification",
		zap.String("id", m.ID),
		zap.String("template", m.TemplateID),
		zap.String("recipient", m.Recipient),
		zap.String("subject", m.Subject))
	return nil
}

// Publisher is the slice of the bus producer KafkaSender needs
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// KafkaSender publishes messages to OutboundTopic keyed by recipient
type KafkaSender struct {
	pub   Publisher
	topic string
}

// NewKafkaSender creates a KafkaSender
func NewKafkaSender(pub Publisher) *KafkaSender {
	return &KafkaSender{pub: pub, topic: OutboundTopic}
}

func (k *KafkaSender) Deliver(ctx context.Context, m Message) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return k.pub.Publish(ctx, k.topic, m.Recipient, value)
}

// Nop discards every send
type Nop struct{}

func (Nop) Send(context.Context, string, string, map[string]string) error { return nil }

// Sent records one call to a Recorder
type Sent struct {
	Recipient  string
	TemplateID string
	Data       map[string]string
}

// Recorder is a Dispatcher test double
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (r *Recorder) Send(_ context.Context, recipient, templateID string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{Recipient: recipient, TemplateID: templateID, Data: data})
	return r.Err
}

// Sent returns a copy of recorded calls
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}
