package episode

import (
	"context"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/prescription"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
)

const entityPrescription = "prescription"

// NewPrescription is the input to CreatePrescription
type NewPrescription struct {
	TreatmentID uuid.UUID
	PatientID   uuid.UUID
	StaffID     uuid.UUID
	Type        string
	Memo        string
	Items       []prescription.ItemSpec
}

// CreatePrescription writes the single prescription of a treatment
func (c *Coordinator) CreatePrescription(ctx context.Context, in NewPrescription) (*prescription.Aggregate, error) {
	var out *prescription.Aggregate
	err := c.execute(ctx, entityPrescription, "create", func(ctx context.Context, tx Tx, _ *effects) error {
		switch {
		case in.TreatmentID == uuid.Nil:
			return apperr.New(apperr.Validation, "treatment is required")
		case in.PatientID == uuid.Nil:
			return apperr.New(apperr.Validation, "patient is required")
		case in.StaffID == uuid.Nil:
			return apperr.New(apperr.Validation, "prescribing staff is required")
		}
		typ, err := prescription.ParseType(in.Type)
		if err != nil {
			return err
		}
		items, err := c.buildItems(in.Items)
		if err != nil {
			return err
		}

		t, err := tx.Treatments().Get(ctx, in.TreatmentID)
		if err != nil {
			return err
		}
		if t.Status() == treatment.StatusCancelled {
			return apperr.Newf(apperr.InvalidState, "treatment %s is cancelled", t.ID())
		}
		if t.PatientID() != in.PatientID {
			return apperr.New(apperr.Validation, "patient does not match the treatment")
		}
		existing, err := tx.Prescriptions().FindByTreatment(ctx, t.ID())
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Newf(apperr.InvalidState, "treatment %s already has prescription %s", t.ID(), existing.ID())
		}
		if _, err := c.dir.Staff(ctx, in.StaffID); err != nil {
			return err
		}

		a, err := prescription.New(c.newID(), prescription.Order{
			TreatmentID: t.ID(),
			PatientID:   in.PatientID,
			StaffID:     in.StaffID,
			Type:        typ,
			Memo:        in.Memo,
			Items:       items,
		}, c.now())
		if err != nil {
			return err
		}
		if err := tx.Prescriptions().Insert(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// GetPrescription loads a prescription with its items
func (c *Coordinator) GetPrescription(ctx context.Context, id uuid.UUID) (*prescription.Aggregate, error) {
	var out *prescription.Aggregate
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Prescriptions().Get(ctx, id)
		return err
	})
	return out, err
}

// GetPrescriptionByTreatment returns NotFound when the treatment has none
func (c *Coordinator) GetPrescriptionByTreatment(ctx context.Context, treatmentID uuid.UUID) (*prescription.Aggregate, error) {
	var out *prescription.Aggregate
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.Prescriptions().FindByTreatment(ctx, treatmentID)
		if err != nil {
			return err
		}
		if a == nil {
			return apperr.Newf(apperr.NotFound, "treatment %s has no prescription", treatmentID)
		}
		out = a
		return nil
	})
	return out, err
}

// AddPrescriptionItem appends a validated item
func (c *Coordinator) AddPrescriptionItem(ctx context.Context, id uuid.UUID, spec prescription.ItemSpec) (*prescription.Aggregate, error) {
	return c.mutatePrescription(ctx, id, "add_item", func(a *prescription.Aggregate) error {
		item, err := prescription.NewItem(c.newID(), spec)
		if err != nil {
			return err
		}
		return a.AddItem(item, c.now())
	})
}

// RemovePrescriptionItem drops an item
func (c *Coordinator) RemovePrescriptionItem(ctx context.Context, id, itemID uuid.UUID) (*prescription.Aggregate, error) {
	return c.mutatePrescription(ctx, id, "remove_item", func(a *prescription.Aggregate) error {
		return a.RemoveItem(itemID, c.now())
	})
}

// UpdatePrescriptionItem applies the non-empty fields of u to an item
func (c *Coordinator) UpdatePrescriptionItem(ctx context.Context, id, itemID uuid.UUID, u prescription.ItemUpdate) (*prescription.Aggregate, error) {
	return c.mutatePrescription(ctx, id, "update_item", func(a *prescription.Aggregate) error {
		return a.UpdateItem(itemID, u, c.now())
	})
}

// Prescribe issues a pending prescription
func (c *Coordinator) Prescribe(ctx context.Context, id uuid.UUID) (*prescription.Aggregate, error) {
	return c.mutatePrescription(ctx, id, "prescribe", func(a *prescription.Aggregate) error {
		return a.Prescribe(c.now())
	})
}

// DispensePrescription records that the pharmacy handed out the drugs
func (c *Coordinator) DispensePrescription(ctx context.Context, id uuid.UUID) (*prescription.Aggregate, error) {
	return c.mutatePrescription(ctx, id, "dispense", func(a *prescription.Aggregate) error {
		return a.Dispense(c.now())
	})
}

// CancelPrescription cancels a prescription that was not dispensed
func (c *Coordinator) CancelPrescription(ctx context.Context, id uuid.UUID, reason string) (*prescription.Aggregate, error) {
	return c.mutatePrescription(ctx, id, "cancel", func(a *prescription.Aggregate) error {
		return a.Cancel(reason, c.now())
	})
}

// UpdatePrescription changes the memo and, when items is non-nil, replaces
// the item list
func (c *Coordinator) UpdatePrescription(ctx context.Context, id uuid.UUID, memo string, items []prescription.ItemSpec) (*prescription.Aggregate, error) {
	return c.mutatePrescription(ctx, id, "update", func(a *prescription.Aggregate) error {
		var built []*prescription.Item
		if items != nil {
			var err error
			if built, err = c.buildItems(items); err != nil {
				return err
			}
		}
		return a.Update(memo, built, c.now())
	})
}

func (c *Coordinator) mutatePrescription(ctx context.Context, id uuid.UUID, op string, fn func(a *prescription.Aggregate) error) (*prescription.Aggregate, error) {
	var out *prescription.Aggregate
	err := c.execute(ctx, entityPrescription, op, func(ctx context.Context, tx Tx, _ *effects) error {
		a, err := tx.Prescriptions().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := tx.Prescriptions().Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// buildItems keeps nil for nil so callers can tell "no change" from "clear"
func (c *Coordinator) buildItems(specs []prescription.ItemSpec) ([]*prescription.Item, error) {
	if specs == nil {
		return nil, nil
	}
	items := make([]*prescription.Item, 0, len(specs))
	for _, spec := range specs {
		item, err := prescription.NewItem(c.newID(), spec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
