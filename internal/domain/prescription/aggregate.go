// Package prescription implements the prescription aggregate: the drug order
// of one treatment, moving PENDING -> PRESCRIBED -> DISPENSED or CANCELLED.
package prescription

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

// AggregateType tags prescription events
const AggregateType = "Prescription"

// Status represents prescription status
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPrescribed Status = "PRESCRIBED"
	StatusDispensed  Status = "DISPENSED"
	StatusCancelled  Status = "CANCELLED"
)

// Type is the prescription category
type Type string

const (
	TypeOutpatient Type = "OUTPATIENT"
	TypeInpatient  Type = "INPATIENT"
	TypeDischarge  Type = "DISCHARGE"
	TypeEmergency  Type = "EMERGENCY"
)

var validTypes = map[Type]bool{
	TypeOutpatient: true,
	TypeInpatient:  true,
	TypeDischarge:  true,
	TypeEmergency:  true,
}

// ParseType validates a prescription type name
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if t == "" {
		return "", apperr.New(apperr.Validation, "prescription type is required")
	}
	if !validTypes[t] {
		return "", apperr.Newf(apperr.Validation, "unknown prescription type %q", s)
	}
	return t, nil
}

// State is the persisted form of a prescription
type State struct {
	ID               uuid.UUID `json:"id"`
	TreatmentID      uuid.UUID `json:"treatment_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	StaffID          uuid.UUID `json:"staff_id"`
	Type             Type      `json:"type"`
	Status           Status    `json:"status"`
	Memo             string    `json:"memo,omitempty"`
	Items            []Item    `json:"items"`
	PrescriptionDate time.Time `json:"prescription_date"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Aggregate represents the prescription aggregate root
type Aggregate struct {
	s State
	event.Recorder
}

// Order holds the references a prescription is created with
type Order struct {
	TreatmentID uuid.UUID
	PatientID   uuid.UUID
	StaffID     uuid.UUID
	Type        Type
	Memo        string
	Items       []*Item
}

// New creates a pending prescription
func New(id uuid.UUID, o Order, now time.Time) (*Aggregate, error) {
	switch {
	case o.TreatmentID == uuid.Nil:
		return nil, apperr.New(apperr.Validation, "treatment is required")
	case o.PatientID == uuid.Nil:
		return nil, apperr.New(apperr.Validation, "patient is required")
	case o.StaffID == uuid.Nil:
		return nil, apperr.New(apperr.Validation, "prescribing staff is required")
	}
	if _, err := ParseType(string(o.Type)); err != nil {
		return nil, err
	}
	items, err := copyItems(o.Items)
	if err != nil {
		return nil, err
	}

	a := &Aggregate{s: State{
		ID:               id,
		TreatmentID:      o.TreatmentID,
		PatientID:        o.PatientID,
		StaffID:          o.StaffID,
		Type:             o.Type,
		Status:           StatusPending,
		Memo:             strings.TrimSpace(o.Memo),
		Items:            items,
		PrescriptionDate: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}}

	if err := a.record(EventPrescriptionCreated, &CreatedData{
		PrescriptionID: id,
		TreatmentID:    o.TreatmentID,
		PatientID:      o.PatientID,
		StaffID:        o.StaffID,
		Type:           o.Type,
		ItemCount:      len(items),
	}); err != nil {
		return nil, err
	}
	return a, nil
}

// Restore rebuilds a prescription from persisted state
func Restore(s State) *Aggregate {
	return &Aggregate{s: s}
}

// State returns a copy of the current state
func (a *Aggregate) State() State {
	s := a.s
	s.Items = append([]Item(nil), a.s.Items...)
	return s
}

func (a *Aggregate) ID() uuid.UUID          { return a.s.ID }
func (a *Aggregate) TreatmentID() uuid.UUID { return a.s.TreatmentID }
func (a *Aggregate) PatientID() uuid.UUID   { return a.s.PatientID }
func (a *Aggregate) Status() Status         { return a.s.Status }
func (a *Aggregate) Memo() string           { return a.s.Memo }
func (a *Aggregate) Items() []Item          { return append([]Item(nil), a.s.Items...) }
func (a *Aggregate) Version() int           { return a.s.Version }

// MarkPersisted advances the version after a successful write
func (a *Aggregate) MarkPersisted() {
	a.s.Version++
	a.ClearChanges()
}

// AddItem appends a validated item
func (a *Aggregate) AddItem(item *Item, now time.Time) error {
	if a.s.Status != StatusPending {
		return a.invalid("add item to")
	}
	if item == nil {
		return apperr.New(apperr.Validation, "item is required")
	}
	if err := a.record(EventPrescriptionItemAdded, itemData(a.s.ID, item)); err != nil {
		return err
	}
	a.s.Items = append(a.s.Items, *item)
	a.s.UpdatedAt = now
	return nil
}

// RemoveItem drops an item by id
func (a *Aggregate) RemoveItem(itemID uuid.UUID, now time.Time) error {
	if a.s.Status != StatusPending {
		return a.invalid("remove item from")
	}
	idx := a.indexOf(itemID)
	if idx < 0 {
		return apperr.Newf(apperr.NotFound, "prescription item %s not found", itemID)
	}
	if err := a.record(EventPrescriptionItemRemoved, itemData(a.s.ID, &a.s.Items[idx])); err != nil {
		return err
	}
	a.s.Items = append(a.s.Items[:idx:idx], a.s.Items[idx+1:]...)
	a.s.UpdatedAt = now
	return nil
}

// UpdateItem applies u to one item
func (a *Aggregate) UpdateItem(itemID uuid.UUID, u ItemUpdate, now time.Time) error {
	if a.s.Status != StatusPending {
		return a.invalid("update item of")
	}
	idx := a.indexOf(itemID)
	if idx < 0 {
		return apperr.Newf(apperr.NotFound, "prescription item %s not found", itemID)
	}
	updated := a.s.Items[idx]
	if err := updated.UpdateInfo(u); err != nil {
		return err
	}
	if err := a.record(EventPrescriptionItemUpdated, itemData(a.s.ID, &updated)); err != nil {
		return err
	}
	a.s.Items[idx] = updated
	a.s.UpdatedAt = now
	return nil
}

// Prescribe issues the prescription. It needs at least one item.
func (a *Aggregate) Prescribe(now time.Time) error {
	if a.s.Status != StatusPending {
		return a.invalid("prescribe")
	}
	if len(a.s.Items) == 0 {
		return apperr.New(apperr.EmptyPrescription, "")
	}
	if err := a.record(EventPrescriptionPrescribed, &TransitionData{
		PrescriptionID: a.s.ID,
		TreatmentID:    a.s.TreatmentID,
		PatientID:      a.s.PatientID,
		ItemCount:      len(a.s.Items),
		At:             now,
	}); err != nil {
		return err
	}
	a.s.Status = StatusPrescribed
	a.s.UpdatedAt = now
	return nil
}

// Dispense records the pharmacy release of a prescribed order
func (a *Aggregate) Dispense(now time.Time) error {
	if a.s.Status != StatusPrescribed {
		return a.invalid("dispense")
	}
	if err := a.record(EventPrescriptionDispensed, &TransitionData{
		PrescriptionID: a.s.ID,
		TreatmentID:    a.s.TreatmentID,
		PatientID:      a.s.PatientID,
		ItemCount:      len(a.s.Items),
		At:             now,
	}); err != nil {
		return err
	}
	a.s.Status = StatusDispensed
	a.s.UpdatedAt = now
	return nil
}

// Cancel withdraws the prescription. A non-blank reason replaces the memo.
func (a *Aggregate) Cancel(reason string, now time.Time) error {
	if a.s.Status == StatusDispensed || a.s.Status == StatusCancelled {
		return a.invalid("cancel")
	}
	reason = strings.TrimSpace(reason)
	if err := a.record(EventPrescriptionCancelled, &CancelledData{
		PrescriptionID: a.s.ID,
		PatientID:      a.s.PatientID,
		Reason:         reason,
		CancelledAt:    now,
	}); err != nil {
		return err
	}
	a.s.Status = StatusCancelled
	if reason != "" {
		a.s.Memo = reason
	}
	a.s.UpdatedAt = now
	return nil
}

// Update edits a pending prescription. A blank memo keeps the current one;
// non-nil items replace the whole list.
func (a *Aggregate) Update(memo string, items []*Item, now time.Time) error {
	if a.s.Status != StatusPending {
		return a.invalid("update")
	}
	var replaced []Item
	if items != nil {
		var err error
		if replaced, err = copyItems(items); err != nil {
			return err
		}
	}
	memo = strings.TrimSpace(memo)

	count := len(a.s.Items)
	if items != nil {
		count = len(replaced)
	}
	if err := a.record(EventPrescriptionUpdated, &UpdatedData{
		PrescriptionID: a.s.ID,
		PatientID:      a.s.PatientID,
		ItemCount:      count,
		ItemsReplaced:  items != nil,
	}); err != nil {
		return err
	}
	if memo != "" {
		a.s.Memo = memo
	}
	if items != nil {
		a.s.Items = replaced
	}
	a.s.UpdatedAt = now
	return nil
}

func (a *Aggregate) indexOf(itemID uuid.UUID) int {
	for i := range a.s.Items {
		if a.s.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (a *Aggregate) invalid(op string) error {
	return apperr.Newf(apperr.InvalidTransition, "cannot %s prescription in status %s", op, a.s.Status)
}

func (a *Aggregate) record(t event.Type, data interface{}) error {
	e, err := event.New(AggregateType, a.s.ID, t, data)
	if err != nil {
		return err
	}
	e.Version = a.s.Version + 1
	e.WithPatient(a.s.PatientID)
	a.Record(e)
	return nil
}

func copyItems(items []*Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			return nil, apperr.New(apperr.Validation, "item is required")
		}
		out = append(out, *it)
	}
	return out, nil
}
