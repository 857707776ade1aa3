package episode

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/notification"
)

const entityTreatment = "treatment"

// NewTreatment is the input to CreateTreatment. PatientID is required only
// when CheckInID is nil.
type NewTreatment struct {
	CheckInID    *uuid.UUID
	PatientID    uuid.UUID
	StaffID      uuid.UUID
	Category     string
	DepartmentID *uuid.UUID
	Note         string
}

// CreateTreatment opens a treatment with its category detail
func (c *Coordinator) CreateTreatment(ctx context.Context, in NewTreatment) (*treatment.Treatment, error) {
	var out *treatment.Treatment
	err := c.execute(ctx, entityTreatment, "create", func(ctx context.Context, tx Tx, _ *effects) error {
		category, err := treatment.ParseCategory(in.Category)
		if err != nil {
			return err
		}
		if in.StaffID == uuid.Nil {
			return apperr.New(apperr.Validation, "attending staff is required")
		}
		if _, err := c.dir.Staff(ctx, in.StaffID); err != nil {
			return err
		}
		if in.DepartmentID != nil {
			if _, err := c.dir.Department(ctx, *in.DepartmentID); err != nil {
				return err
			}
		}
		draft := treatment.Draft{
			StaffID:      in.StaffID,
			Category:     category,
			DepartmentID: in.DepartmentID,
			Note:         in.Note,
		}

		var t *treatment.Treatment
		if in.CheckInID != nil {
			ci, err := tx.CheckIns().Get(ctx, *in.CheckInID)
			if err != nil {
				return err
			}
			if in.PatientID != uuid.Nil && in.PatientID != ci.PatientID() {
				return apperr.New(apperr.Validation, "patient does not match the check-in")
			}
			existing, err := tx.Treatments().FindByCheckIn(ctx, ci.ID())
			if err != nil {
				return err
			}
			if existing != nil {
				return apperr.Newf(apperr.InvalidState, "check-in %s already has treatment %s", ci.ID(), existing.ID())
			}
			t, err = treatment.NewFromCheckIn(c.newID(), ci, draft, c.now())
			if err != nil {
				return err
			}
		} else {
			if in.PatientID != uuid.Nil {
				if _, err := c.dir.Patient(ctx, in.PatientID); err != nil {
					return err
				}
			}
			t, err = treatment.New(c.newID(), in.PatientID, draft, c.now())
			if err != nil {
				return err
			}
		}
		if err := tx.Treatments().Insert(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// CreateTreatmentFromCheckIn opens an outpatient treatment for a completed
// check-in using the directory defaults, or returns the one already open
func (c *Coordinator) CreateTreatmentFromCheckIn(ctx context.Context, checkInID uuid.UUID) (*treatment.Treatment, error) {
	var out *treatment.Treatment
	err := c.execute(ctx, entityTreatment, "create_from_checkin", func(ctx context.Context, tx Tx, _ *effects) error {
		ci, err := tx.CheckIns().Get(ctx, checkInID)
		if err != nil {
			return err
		}
		out, _, err = c.treatmentFromCheckIn(ctx, tx, ci)
		return err
	})
	return out, err
}

// GetTreatment loads a treatment
func (c *Coordinator) GetTreatment(ctx context.Context, id uuid.UUID) (*treatment.Treatment, error) {
	var out *treatment.Treatment
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Treatments().Get(ctx, id)
		return err
	})
	return out, err
}

// ListTreatmentsByPatient returns a patient's treatments
func (c *Coordinator) ListTreatmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]*treatment.Treatment, error) {
	var out []*treatment.Treatment
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Treatments().ListByPatient(ctx, patientID)
		return err
	})
	return out, err
}

// StartTreatment moves a pending treatment in progress
func (c *Coordinator) StartTreatment(ctx context.Context, id uuid.UUID) (*treatment.Treatment, error) {
	return c.mutateTreatment(ctx, id, "start", func(ctx context.Context, tx Tx, t *treatment.Treatment, _ *effects) error {
		return t.Start(c.now())
	})
}

// CompleteTreatment closes the treatment. For check-in backed treatments the
// matching reservation is completed too when enabled; that step never fails
// the operation.
func (c *Coordinator) CompleteTreatment(ctx context.Context, id uuid.UUID, note string) (*treatment.Treatment, error) {
	var out *treatment.Treatment
	err := c.execute(ctx, entityTreatment, "complete", func(ctx context.Context, tx Tx, fx *effects) error {
		t, err := tx.Treatments().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := t.Complete(note, c.now()); err != nil {
			return err
		}
		if err := tx.Treatments().Update(ctx, t); err != nil {
			return err
		}
		if c.cfg.AutoCompleteReservation && t.CheckInID() != nil {
			checkInID := *t.CheckInID()
			c.bestEffort(ctx, tx, fx, RuleAutoCompleteReservation,
				[]zap.Field{
					zap.String("treatment_id", t.ID().String()),
					zap.String("checkin_id", checkInID.String()),
				},
				func(ctx context.Context, tx Tx) (string, error) {
					return c.completeLinkedReservation(ctx, tx, fx, checkInID)
				})
		}
		fx.notify(t.PatientID(), notification.TemplateTreatmentCompleted, map[string]string{
			"treatment_id": t.ID().String(),
			"category":     string(t.Category()),
			"completed_at": c.formatTime(c.now()),
			"note":         t.Note(),
		})
		out = t
		return nil
	})
	return out, err
}

// CancelTreatment cancels an open treatment
func (c *Coordinator) CancelTreatment(ctx context.Context, id uuid.UUID, reason string) (*treatment.Treatment, error) {
	return c.mutateTreatment(ctx, id, "cancel", func(ctx context.Context, tx Tx, t *treatment.Treatment, _ *effects) error {
		return t.Cancel(reason, c.now())
	})
}

// UpdateTreatment edits note, department or attending staff
func (c *Coordinator) UpdateTreatment(ctx context.Context, id uuid.UUID, e treatment.Edit) (*treatment.Treatment, error) {
	return c.mutateTreatment(ctx, id, "update", func(ctx context.Context, tx Tx, t *treatment.Treatment, _ *effects) error {
		if e.StaffID != nil {
			if _, err := c.dir.Staff(ctx, *e.StaffID); err != nil {
				return err
			}
		}
		if e.DepartmentID != nil {
			if _, err := c.dir.Department(ctx, *e.DepartmentID); err != nil {
				return err
			}
		}
		return t.Update(e, c.now())
	})
}

func (c *Coordinator) mutateTreatment(ctx context.Context, id uuid.UUID, op string, fn func(ctx context.Context, tx Tx, t *treatment.Treatment, fx *effects) error) (*treatment.Treatment, error) {
	var out *treatment.Treatment
	err := c.execute(ctx, entityTreatment, op, func(ctx context.Context, tx Tx, fx *effects) error {
		t, err := tx.Treatments().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, t, fx); err != nil {
			return err
		}
		if err := tx.Treatments().Update(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// completeLinkedReservation completes the reservation a check-in fulfils.
// It does not trigger check-in creation again.
func (c *Coordinator) completeLinkedReservation(ctx context.Context, tx Tx, fx *effects, checkInID uuid.UUID) (string, error) {
	ci, err := tx.CheckIns().Get(ctx, checkInID)
	if err != nil {
		return "", err
	}
	r, err := c.locator.Locate(ctx, tx, ci)
	if err != nil {
		return "", err
	}
	switch {
	case r == nil:
		return "no_match", nil
	case r.Status() == reservation.StatusCompleted:
		return "already_completed", nil
	}
	if err := c.completeReservation(ctx, tx, fx, r, false); err != nil {
		return "", err
	}
	return "completed", nil
}

// treatmentFromCheckIn returns the check-in's treatment, creating an
// outpatient one with the directory defaults when there is none
func (c *Coordinator) treatmentFromCheckIn(ctx context.Context, tx Tx, ci *checkin.CheckIn) (*treatment.Treatment, bool, error) {
	existing, err := tx.Treatments().FindByCheckIn(ctx, ci.ID())
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if ci.Status() != checkin.StatusCompleted {
		return nil, false, apperr.Newf(apperr.InvalidState, "check-in %s is %s, not COMPLETED", ci.ID(), ci.Status())
	}

	dept, err := c.dir.DefaultDepartment(ctx)
	if err != nil {
		return nil, false, err
	}
	doctorID, err := c.attendingDoctor(ctx, ci)
	if err != nil {
		return nil, false, err
	}
	deptID := dept.ID
	t, err := treatment.NewFromCheckIn(c.newID(), ci, treatment.Draft{
		StaffID:      doctorID,
		Category:     treatment.CategoryOutpatient,
		DepartmentID: &deptID,
	}, c.now())
	if err != nil {
		return nil, false, err
	}
	if err := tx.Treatments().Insert(ctx, t); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// attendingDoctor is the check-in's staff when they are a doctor, otherwise
// the directory's default doctor
func (c *Coordinator) attendingDoctor(ctx context.Context, ci *checkin.CheckIn) (uuid.UUID, error) {
	if id := ci.StaffID(); id != nil {
		s, err := c.dir.Staff(ctx, *id)
		switch {
		case err == nil && s.IsDoctor():
			return s.ID, nil
		case err != nil && !apperr.Is(err, apperr.NotFound):
			return uuid.Nil, err
		}
	}
	doc, err := c.dir.DefaultDoctor(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return doc.ID, nil
}
