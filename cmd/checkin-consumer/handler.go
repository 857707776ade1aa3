package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
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

const handlerName = "auto_create_treatment"

// inbox dedupes deliveries by key
type inbox interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// treatmentOpener applies the check-in completed rule
type treatmentOpener interface {
	HandleCheckInCompleted(ctx context.Context, checkInID uuid.UUID) (*treatment.Treatment, error)
}

type consumedMetrics interface {
	ObserveConsumed(topic, outcome string)
}

type openJob struct {
	checkInID   uuid.UUID
	treatmentID *uuid.UUID
}

// checkInHandler opens the treatment of every completed check-in exactly
// once per event id
type checkInHandler struct {
	inbox   inbox
	workers *workerpool.Pool[openJob]
	metrics consumedMetrics
	logger  *zap.Logger
}

func newCheckInHandler(ib inbox, opener treatmentOpener, breaker *circuitbreaker.Breaker, poolCfg workerpool.Config, metrics consumedMetrics, logger *zap.Logger) (*checkInHandler, error) {
	if poolCfg.Permanent == nil {
		poolCfg.Permanent = domainRejection
	}
	workers, err := workerpool.New(poolCfg, func(ctx context.Context, j openJob) error {
		return breaker.Run(ctx, func(ctx context.Context) error {
			t, err := opener.HandleCheckInCompleted(ctx, j.checkInID)
			if err != nil {
				return err
			}
			if t != nil {
				id := t.ID()
				*j.treatmentID = id
			}
			return nil
		})
	}, logger)
	if err != nil {
		return nil, err
	}
	workers.Start()
	return &checkInHandler{inbox: ib, workers: workers, metrics: metrics, logger: logger}, nil
}

func (h *checkInHandler) Stop() { h.workers.Stop() }

// Handle returns an error only for failures worth logging; the consumer
// commits past the record either way
func (h *checkInHandler) Handle(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	outcome, err := h.handle(ctx, msg)
	h.metrics.ObserveConsumed(msg.Topic, outcome)
	return err
}

func (h *checkInHandler) handle(ctx context.Context, msg *redpanda.ConsumedMessage) (string, error) {
	var e event.Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return "malformed", fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	if e.EventType != checkin.EventCheckInCompleted {
		return "skipped", nil
	}
	checkInID, err := uuid.Parse(e.AggregateID)
	if err != nil {
		return "malformed", fmt.Errorf("event %s: bad check-in id %q", e.ID, e.AggregateID)
	}

	key := idempotency.GenerateKey(handlerName, e.ID)
	res, err := h.inbox.Process(ctx, key, handlerName, msg.Value, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		var treatmentID uuid.UUID
		if err := h.workers.Do(ctx, openJob{checkInID: checkInID, treatmentID: &treatmentID}); err != nil {
			return nil, err
		}
		if treatmentID == uuid.Nil {
			return json.RawMessage(`{"rule":"disabled"}`), nil
		}
		return json.Marshal(map[string]string{"treatment_id": treatmentID.String()})
	})
	switch {
	case errors.Is(err, idempotency.ErrPreviouslyFailed):
		return "previously_failed", nil
	case errors.Is(err, idempotency.ErrMessageInProgress), errors.Is(err, idempotency.ErrDuplicateMessage):
		return "in_progress", nil
	case err != nil:
		return "failed", fmt.Errorf("check-in %s: %w", checkInID, err)
	case res.Outcome == idempotency.OutcomeDuplicate:
		return "duplicate", nil
	}

	h.logger.Info("treatment opened from check-in event",
		zap.String("event_id", e.ID),
		zap.String("checkin_id", checkInID.String()),
		zap.String("inbox_outcome", string(res.Outcome)),
		zap.ByteString("result", res.Result))
	return "processed", nil
}

// domainRejection reports errors that another attempt cannot fix
func domainRejection(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return true
	}
	return apperr.KindOf(err) != apperr.Internal
}
