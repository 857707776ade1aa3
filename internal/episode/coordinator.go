// Package episode coordinates the lifecycle of one clinical visit across
// reservations, check-ins, treatments, prescriptions and payments. Every
// operation runs in a single unit of work; notifications go out only after
// it commits.
package episode

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/directory"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/notification"
)

// Orchestration rule names used in logs and metrics
const (
	RuleAutoCreateCheckIn       = "auto_create_checkin"
	RuleAutoCompleteReservation = "auto_complete_reservation"
	RuleAutoCreateTreatment     = "auto_create_treatment"
)

// Metrics receives coordinator outcomes
type Metrics interface {
	ObserveTransition(entity, op, outcome string)
	ObserveOrchestration(rule, outcome string)
	ObserveNotification(template, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(string, string, string) {}
func (nopMetrics) ObserveOrchestration(string, string)      {}
func (nopMetrics) ObserveNotification(string, string)       {}

// Coordinator is the entry point for every episode operation
type Coordinator struct {
	store    Store
	dir      directory.Directory
	notifier notification.Dispatcher
	locator  ReservationLocator
	cfg      Config
	logger   *zap.Logger
	metrics  Metrics
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() uuid.UUID
}

// Option customises a Coordinator
type Option func(*Coordinator)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDs overrides uuid generation
func WithIDs(newID func() uuid.UUID) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// WithLocator replaces the reservation lookup used by auto-completion
func WithLocator(l ReservationLocator) Option {
	return func(c *Coordinator) { c.locator = l }
}

// WithMetrics records outcomes
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator. notifier may be nil to disable notifications.
func New(store Store, dir directory.Directory, notifier notification.Dispatcher, cfg Config, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	c := &Coordinator{
		store:    store,
		dir:      dir,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  nopMetrics{},
		tracer:   otel.Tracer("episode"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
	c.locator = LinkedLocator{Fallback: PatientDateLocator{Location: cfg.location()}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the active rule configuration
func (c *Coordinator) Config() Config { return c.cfg }

// notice is a notification queued until commit
type notice struct {
	patientID  uuid.UUID
	templateID string
	data       map[string]string
}

// effects collects post-commit work for one operation
type effects struct {
	notices []notice
	rules   []ruleOutcome
}

type ruleOutcome struct {
	rule, outcome string
}

func (fx *effects) notify(patientID uuid.UUID, templateID string, data map[string]string) {
	fx.notices = append(fx.notices, notice{patientID: patientID, templateID: templateID, data: data})
}

// observe queues an orchestration outcome; it is counted only on commit
func (fx *effects) observe(rule, outcome string) {
	fx.rules = append(fx.rules, ruleOutcome{rule: rule, outcome: outcome})
}

// execute runs fn in a unit of work. Once the unit has committed it records
// the outcome and the queued rule outcomes, then dispatches notifications.
func (c *Coordinator) execute(ctx context.Context, entity, op string, fn func(ctx context.Context, tx Tx, fx *effects) error) error {
	ctx, span := c.tracer.Start(ctx, entity+"."+op, trace.WithAttributes(
		attribute.String("episode.entity", entity),
		attribute.String("episode.op", op),
	))
	defer span.End()

	var fx effects
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		fx = effects{}
		return fn(ctx, tx, &fx)
	})
	if err != nil {
		kind := apperr.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		c.metrics.ObserveTransition(entity, op, string(kind))
		if kind == apperr.Internal {
			c.logger.Error("episode operation failed",
				zap.String("entity", entity),
				zap.String("op", op),
				zap.Error(err))
		}
		return err
	}
	c.metrics.ObserveTransition(entity, op, "ok")
	for _, o := range fx.rules {
		c.metrics.ObserveOrchestration(o.rule, o.outcome)
	}

	for _, n := range fx.notices {
		c.dispatch(ctx, n)
	}
	return nil
}

// read runs fn in a unit of work without recording metrics
func (c *Coordinator) read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return c.store.WithinTx(ctx, fn)
}

// bestEffort runs a rule in a savepoint; failures are logged, never returned
func (c *Coordinator) bestEffort(ctx context.Context, tx Tx, fx *effects, rule string, fields []zap.Field, fn func(ctx context.Context, tx Tx) (string, error)) {
	var outcome string
	err := tx.Savepoint(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		outcome, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		outcome = "failed"
		c.logger.Warn("orchestration step failed",
			append(fields, zap.String("rule", rule), zap.Error(err))...)
	} else {
		c.logger.Debug("orchestration step",
			append(fields, zap.String("rule", rule), zap.String("outcome", outcome))...)
	}
	fx.observe(rule, outcome)
}

func (c *Coordinator) dispatch(ctx context.Context, n notice) {
	log := c.logger.With(zap.String("template", n.templateID), zap.String("patient_id", n.patientID.String()))

	p, err := c.dir.Patient(ctx, n.patientID)
	if err != nil {
		log.Warn("notification recipient lookup failed", zap.Error(err))
		c.metrics.ObserveNotification(n.templateID, "lookup_failed")
		return
	}
	if p.Email == "" {
		log.Debug("patient has no email, notification skipped")
		c.metrics.ObserveNotification(n.templateID, "skipped")
		return
	}

	data := make(map[string]string, len(n.data)+1)
	for k, v := range n.data {
		data[k] = v
	}
	data["patient_name"] = p.Name

	if err := c.notifier.Send(ctx, p.Email, n.templateID, data); err != nil {
		log.Warn("notification failed", zap.Error(err))
		c.metrics.ObserveNotification(n.templateID, "failed")
		return
	}
	c.metrics.ObserveNotification(n.templateID, "sent")
}

func (c *Coordinator) formatTime(t time.Time) string {
	return t.In(c.cfg.location()).Format("2006-01-02 15:04")
}
