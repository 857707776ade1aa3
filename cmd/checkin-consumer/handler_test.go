package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/redpanda"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/circuitbreaker"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/idempotency"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/workerpool"
)

// memInbox keeps finished keys in memory and marks failures terminal
type memInbox struct {
	mu       sync.Mutex
	finished map[string]json.RawMessage
	failed   map[string]bool
}

func newMemInbox() *memInbox {
	return &memInbox{finished: map[string]json.RawMessage{}, failed: map[string]bool{}}
}

func (m *memInbox) Process(ctx context.Context, key, _ string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error) {
	m.mu.Lock()
	if r, ok := m.finished[key]; ok {
		m.mu.Unlock()
		return &idempotency.ProcessResult{Outcome: idempotency.OutcomeDuplicate, Result: r}, nil
	}
	if m.failed[key] {
		m.mu.Unlock()
		return nil, idempotency.ErrPreviouslyFailed
	}
	m.mu.Unlock()

	r, err := fn(ctx, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if apperr.KindOf(err) != apperr.Internal {
			m.failed[key] = true
		}
		return nil, err
	}
	m.finished[key] = r
	return &idempotency.ProcessResult{Outcome: idempotency.OutcomeProcessed, Result: r}, nil
}

type opener struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
	t     *treatment.Treatment
}

func (o *opener) HandleCheckInCompleted(_ context.Context, id uuid.UUID) (*treatment.Treatment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, id)
	return o.t, o.err
}

func (o *opener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

type consumed struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *consumed) ObserveConsumed(_, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func openTreatment(t *testing.T) *treatment.Treatment {
	t.Helper()
	tr, err := treatment.New(uuid.New(), uuid.New(), treatment.Draft{
		StaffID:  uuid.New(),
		Category: treatment.CategoryOutpatient,
	}, time.Now())
	require.NoError(t, err)
	return tr
}

func newHandler(t *testing.T, o *opener) (*checkInHandler, *consumed) {
	t.Helper()
	breakerCfg := circuitbreaker.DefaultConfig("treatment-open")
	breakerCfg.Permanent = domainRejection
	breaker, err := circuitbreaker.New(breakerCfg, zap.NewNop())
	require.NoError(t, err)

	poolCfg := workerpool.DefaultConfig("checkin-consumer")
	poolCfg.Workers = 2
	poolCfg.MaxRetries = 1
	poolCfg.RetryDelay = time.Millisecond

	m := &consumed{}
	h, err := newCheckInHandler(newMemInbox(), o, breaker, poolCfg, m, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(h.Stop)
	return h, m
}

func message(t *testing.T, et event.Type, checkInID uuid.UUID) *redpanda.ConsumedMessage {
	t.Helper()
	e, err := event.New(checkin.AggregateType, checkInID, et, &checkin.TransitionData{CheckInID: checkInID})
	require.NoError(t, err)
	value, err := json.Marshal(e)
	require.NoError(t, err)
	return &redpanda.ConsumedMessage{Topic: "checkin.events", Value: value}
}

func TestRedeliveryOpensTreatmentOnce(t *testing.T) {
	o := &opener{t: openTreatment(t)}
	h, m := newHandler(t, o)
	msg := message(t, checkin.EventCheckInCompleted, uuid.New())

	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Equal(t, 1, o.count())
	assert.Equal(t, []string{"processed", "duplicate"}, m.outcomes)
}

func TestOtherEventsAreSkipped(t *testing.T) {
	o := &opener{}
	h, m := newHandler(t, o)

	require.NoError(t, h.Handle(context.Background(), message(t, checkin.EventCheckInCreated, uuid.New())))
	assert.Zero(t, o.count())
	assert.Equal(t, []string{"skipped"}, m.outcomes)
}

func TestMalformedRecord(t *testing.T) {
	h, m := newHandler(t, &opener{})
	err := h.Handle(context.Background(), &redpanda.ConsumedMessage{Topic: "checkin.events", Value: []byte("{")})
	assert.Error(t, err)
	assert.Equal(t, []string{"malformed"}, m.outcomes)
}

func TestDomainRejectionIsNotRetried(t *testing.T) {
	o := &opener{err: apperr.New(apperr.InvalidState, "check-in is cancelled")}
	h, m := newHandler(t, o)
	msg := message(t, checkin.EventCheckInCompleted, uuid.New())

	err := h.Handle(context.Background(), msg)
	assert.ErrorIs(t, err, apperr.InvalidState)
	assert.Equal(t, 1, o.count())

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, 1, o.count())
	assert.Equal(t, []string{"failed", "previously_failed"}, m.outcomes)
}

func TestTransientFailureIsRetried(t *testing.T) {
	o := &opener{err: errors.New("connection reset")}
	h, m := newHandler(t, o)

	err := h.Handle(context.Background(), message(t, checkin.EventCheckInCompleted, uuid.New()))
	assert.Error(t, err)
	assert.Equal(t, 2, o.count())
	assert.Equal(t, []string{"failed"}, m.outcomes)
}

func TestDomainRejection(t *testing.T) {
	assert.True(t, domainRejection(apperr.New(apperr.NotFound, "")))
	assert.True(t, domainRejection(circuitbreaker.ErrOpen))
	assert.False(t, domainRejection(errors.New("timeout")))
}
