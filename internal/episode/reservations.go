package episode

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/notification"
)

const entityReservation = "reservation"

// NewReservation is the input to CreateReservation
type NewReservation struct {
	PatientID   uuid.UUID
	StaffID     *uuid.UUID
	ScheduledAt time.Time
	Memo        string
}

// CreateReservation books a visit. The patient may not hold another open
// reservation at the same time.
func (c *Coordinator) CreateReservation(ctx context.Context, in NewReservation) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := c.execute(ctx, entityReservation, "create", func(ctx context.Context, tx Tx, fx *effects) error {
		if in.PatientID == uuid.Nil {
			return apperr.New(apperr.Validation, "patient is required")
		}
		if _, err := c.dir.Patient(ctx, in.PatientID); err != nil {
			return err
		}
		r, err := reservation.New(c.newID(), in.PatientID, in.StaffID, in.ScheduledAt, in.Memo, c.now())
		if err != nil {
			return err
		}
		if err := c.ensureSlotFree(ctx, tx, in.PatientID, in.ScheduledAt, uuid.Nil); err != nil {
			return err
		}
		if err := tx.Reservations().Insert(ctx, r); err != nil {
			return err
		}
		fx.notify(r.PatientID(), notification.TemplateReservationRegistered, map[string]string{
			"reservation_id": r.ID().String(),
			"scheduled_at":   c.formatTime(r.ScheduledAt()),
		})
		out = r
		return nil
	})
	return out, err
}

// GetReservation loads a reservation
func (c *Coordinator) GetReservation(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Reservations().Get(ctx, id)
		return err
	})
	return out, err
}

// ListReservationsByPatient returns a patient's reservations, earliest first
func (c *Coordinator) ListReservationsByPatient(ctx context.Context, patientID uuid.UUID) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Reservations().ListByPatient(ctx, patientID)
		return err
	})
	return out, err
}

// ConfirmReservation confirms a pending reservation
func (c *Coordinator) ConfirmReservation(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	return c.mutateReservation(ctx, id, "confirm", func(r *reservation.Reservation, _ *effects) error {
		return r.Confirm(c.now())
	})
}

// CompleteReservation marks the visit as attended and, when enabled,
// creates the day's check-in in the same unit of work
func (c *Coordinator) CompleteReservation(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := c.execute(ctx, entityReservation, "complete", func(ctx context.Context, tx Tx, fx *effects) error {
		r, err := tx.Reservations().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := c.completeReservation(ctx, tx, fx, r, c.cfg.AutoCreateCheckIn); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// CancelReservation cancels an open reservation
func (c *Coordinator) CancelReservation(ctx context.Context, id uuid.UUID, reason string) (*reservation.Reservation, error) {
	return c.mutateReservation(ctx, id, "cancel", func(r *reservation.Reservation, fx *effects) error {
		if err := r.Cancel(reason, c.now()); err != nil {
			return err
		}
		fx.notify(r.PatientID(), notification.TemplateReservationCancelled, map[string]string{
			"reservation_id": r.ID().String(),
			"scheduled_at":   c.formatTime(r.ScheduledAt()),
			"reason":         r.CancelReason(),
		})
		return nil
	})
}

// RescheduleReservation moves an open reservation to a new free slot
func (c *Coordinator) RescheduleReservation(ctx context.Context, id uuid.UUID, at time.Time, reason string) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := c.execute(ctx, entityReservation, "reschedule", func(ctx context.Context, tx Tx, fx *effects) error {
		r, err := tx.Reservations().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Reschedule(at, reason, c.now()); err != nil {
			return err
		}
		if err := c.ensureSlotFree(ctx, tx, r.PatientID(), at, r.ID()); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		fx.notify(r.PatientID(), notification.TemplateReservationUpdated, map[string]string{
			"reservation_id": r.ID().String(),
			"scheduled_at":   c.formatTime(r.ScheduledAt()),
			"reason":         reason,
		})
		out = r
		return nil
	})
	return out, err
}

// FindReservationByCheckIn returns the reservation the check-in fulfils,
// or NotFound
func (c *Coordinator) FindReservationByCheckIn(ctx context.Context, checkInID uuid.UUID) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		ci, err := tx.CheckIns().Get(ctx, checkInID)
		if err != nil {
			return err
		}
		r, err := c.locator.Locate(ctx, tx, ci)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.Newf(apperr.NotFound, "no reservation matches check-in %s", checkInID)
		}
		out = r
		return nil
	})
	return out, err
}

// CompleteReservationByCheckIn completes the reservation a check-in
// fulfils. Unlike the automatic rule, failures are returned.
func (c *Coordinator) CompleteReservationByCheckIn(ctx context.Context, checkInID uuid.UUID) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := c.execute(ctx, entityReservation, "complete_by_checkin", func(ctx context.Context, tx Tx, fx *effects) error {
		ci, err := tx.CheckIns().Get(ctx, checkInID)
		if err != nil {
			return err
		}
		r, err := c.locator.Locate(ctx, tx, ci)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.Newf(apperr.NotFound, "no reservation matches check-in %s", checkInID)
		}
		if r.Status() != reservation.StatusCompleted {
			if err := c.completeReservation(ctx, tx, fx, r, false); err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	return out, err
}

func (c *Coordinator) mutateReservation(ctx context.Context, id uuid.UUID, op string, fn func(r *reservation.Reservation, fx *effects) error) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := c.execute(ctx, entityReservation, op, func(ctx context.Context, tx Tx, fx *effects) error {
		r, err := tx.Reservations().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(r, fx); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (c *Coordinator) ensureSlotFree(ctx context.Context, tx Tx, patientID uuid.UUID, at time.Time, exclude uuid.UUID) error {
	taken, err := tx.Reservations().ExistsOpenAt(ctx, patientID, at, exclude)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Newf(apperr.DuplicateReservation, "patient already has a reservation at %s", at.Format(time.RFC3339))
	}
	return nil
}

// completeReservation completes r and optionally applies the check-in rule
func (c *Coordinator) completeReservation(ctx context.Context, tx Tx, fx *effects, r *reservation.Reservation, createCheckIn bool) error {
	if err := r.Complete(c.now()); err != nil {
		return err
	}
	if err := tx.Reservations().Update(ctx, r); err != nil {
		return err
	}
	if !createCheckIn {
		return nil
	}
	_, created, err := c.ensureCheckIn(ctx, tx, r)
	if err != nil {
		return err
	}
	outcome := "exists"
	if created {
		outcome = "created"
	}
	fx.observe(RuleAutoCreateCheckIn, outcome)
	c.logger.Debug("reservation check-in",
		zap.String("reservation_id", r.ID().String()),
		zap.String("outcome", outcome))
	return nil
}

// ensureCheckIn returns the patient's check-in on the reservation date,
// creating one linked to r when there is none
func (c *Coordinator) ensureCheckIn(ctx context.Context, tx Tx, r *reservation.Reservation) (*checkin.CheckIn, bool, error) {
	from, to := DayBounds(r.ScheduledAt(), c.cfg.location())
	existing, err := tx.CheckIns().FindByPatientBetween(ctx, r.PatientID(), from, to)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return existing[0], false, nil
	}
	ci, err := checkin.NewFromReservation(c.newID(), r.ID(), r.PatientID(), r.StaffID(), r.ScheduledAt(), c.now())
	if err != nil {
		return nil, false, err
	}
	if err := tx.CheckIns().Insert(ctx, ci); err != nil {
		return nil, false, err
	}
	return ci, true, nil
}
