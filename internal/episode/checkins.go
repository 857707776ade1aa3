package episode

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
)

const entityCheckIn = "checkin"

// NewCheckIn is the input to CreateCheckIn
type NewCheckIn struct {
	PatientID uuid.UUID
	StaffID   *uuid.UUID
	Comment   string
}

// CreateCheckIn registers a walk-in patient
func (c *Coordinator) CreateCheckIn(ctx context.Context, in NewCheckIn) (*checkin.CheckIn, error) {
	var out *checkin.CheckIn
	err := c.execute(ctx, entityCheckIn, "create", func(ctx context.Context, tx Tx, _ *effects) error {
		if in.PatientID == uuid.Nil {
			return apperr.New(apperr.Validation, "patient is required")
		}
		if _, err := c.dir.Patient(ctx, in.PatientID); err != nil {
			return err
		}
		ci, err := checkin.New(c.newID(), in.PatientID, in.StaffID, in.Comment, c.now())
		if err != nil {
			return err
		}
		if err := tx.CheckIns().Insert(ctx, ci); err != nil {
			return err
		}
		out = ci
		return nil
	})
	return out, err
}

// CreateCheckInFromReservation returns the patient's check-in for the
// reservation date, creating it if none exists
func (c *Coordinator) CreateCheckInFromReservation(ctx context.Context, reservationID uuid.UUID) (*checkin.CheckIn, error) {
	var out *checkin.CheckIn
	err := c.execute(ctx, entityCheckIn, "create_from_reservation", func(ctx context.Context, tx Tx, _ *effects) error {
		r, err := tx.Reservations().Get(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status() == reservation.StatusCancelled {
			return apperr.Newf(apperr.InvalidState, "reservation %s is cancelled", reservationID)
		}
		out, _, err = c.ensureCheckIn(ctx, tx, r)
		return err
	})
	return out, err
}

// GetCheckIn loads a check-in
func (c *Coordinator) GetCheckIn(ctx context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	var out *checkin.CheckIn
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.CheckIns().Get(ctx, id)
		return err
	})
	return out, err
}

// CompleteCheckIn marks the patient as received. When enabled the
// outpatient treatment is opened in the same unit of work; a failure there
// is logged and leaves the check-in completed.
func (c *Coordinator) CompleteCheckIn(ctx context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	var out *checkin.CheckIn
	err := c.execute(ctx, entityCheckIn, "complete", func(ctx context.Context, tx Tx, fx *effects) error {
		ci, err := tx.CheckIns().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := ci.Complete(c.now()); err != nil {
			return err
		}
		if err := tx.CheckIns().Update(ctx, ci); err != nil {
			return err
		}
		if c.cfg.AutoCreateTreatmentOnCheckIn {
			c.bestEffort(ctx, tx, fx, RuleAutoCreateTreatment,
				[]zap.Field{zap.String("checkin_id", ci.ID().String())},
				func(ctx context.Context, tx Tx) (string, error) {
					_, created, err := c.treatmentFromCheckIn(ctx, tx, ci)
					return createdOutcome(created), err
				})
		}
		out = ci
		return nil
	})
	return out, err
}

// CancelCheckIn withdraws a pending check-in
func (c *Coordinator) CancelCheckIn(ctx context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	var out *checkin.CheckIn
	err := c.execute(ctx, entityCheckIn, "cancel", func(ctx context.Context, tx Tx, _ *effects) error {
		ci, err := tx.CheckIns().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := ci.Cancel(c.now()); err != nil {
			return err
		}
		if err := tx.CheckIns().Update(ctx, ci); err != nil {
			return err
		}
		out = ci
		return nil
	})
	return out, err
}

// HandleCheckInCompleted applies the treatment rule for a check-in completed
// elsewhere, e.g. delivered from the bus. It returns nil, nil when the rule
// is disabled. Repeated deliveries return the same treatment.
func (c *Coordinator) HandleCheckInCompleted(ctx context.Context, checkInID uuid.UUID) (*treatment.Treatment, error) {
	if !c.cfg.AutoCreateTreatmentOnCheckIn {
		c.metrics.ObserveOrchestration(RuleAutoCreateTreatment, "disabled")
		return nil, nil
	}
	var out *treatment.Treatment
	err := c.execute(ctx, entityTreatment, "create_from_checkin_event", func(ctx context.Context, tx Tx, fx *effects) error {
		ci, err := tx.CheckIns().Get(ctx, checkInID)
		if err != nil {
			return err
		}
		t, created, err := c.treatmentFromCheckIn(ctx, tx, ci)
		if err != nil {
			return err
		}
		fx.observe(RuleAutoCreateTreatment, createdOutcome(created))
		out = t
		return nil
	})
	return out, err
}

func createdOutcome(created bool) string {
	if created {
		return "created"
	}
	return "exists"
}
