// Package treatment implements the treatment aggregate: one clinical
// encounter with its category detail record.
package treatment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

// AggregateType tags treatment events
const AggregateType = "Treatment"

// DefaultCancelReason is stored when a cancellation carries no reason
const DefaultCancelReason = "treatment cancelled"

// Status represents treatment status
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// State is the persisted form of a treatment
type State struct {
	ID            uuid.UUID  `json:"id"`
	CheckInID     *uuid.UUID `json:"check_in_id,omitempty"`
	PatientID     uuid.UUID  `json:"patient_id"`
	StaffID       uuid.UUID  `json:"staff_id"`
	DepartmentID  *uuid.UUID `json:"department_id,omitempty"`
	Category      Category   `json:"category"`
	Status        Status     `json:"status"`
	Note          string     `json:"note,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	TreatmentDate time.Time  `json:"treatment_date"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Treatment is the treatment aggregate root
type Treatment struct {
	s      State
	detail Detail
	event.Recorder
}

// Draft carries the fields shared by both constructors
type Draft struct {
	StaffID      uuid.UUID
	Category     Category
	DepartmentID *uuid.UUID
	Note         string
}

// New creates a treatment for a patient without a check-in
func New(id, patientID uuid.UUID, d Draft, now time.Time) (*Treatment, error) {
	if patientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient is required when no check-in is given")
	}
	return build(id, patientID, nil, d, now)
}

// NewFromCheckIn creates a treatment for a completed check-in
func NewFromCheckIn(id uuid.UUID, ci *checkin.CheckIn, d Draft, now time.Time) (*Treatment, error) {
	if ci == nil {
		return nil, apperr.New(apperr.Validation, "check-in is required")
	}
	if ci.Status() != checkin.StatusCompleted {
		return nil, apperr.Newf(apperr.InvalidState, "check-in %s is %s, not COMPLETED", ci.ID(), ci.Status())
	}
	ciID := ci.ID()
	return build(id, ci.PatientID(), &ciID, d, now)
}

func build(id, patientID uuid.UUID, checkInID *uuid.UUID, d Draft, now time.Time) (*Treatment, error) {
	if d.StaffID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "attending staff is required")
	}
	detail, err := newDetail(d.Category, id, checkInID)
	if err != nil {
		return nil, err
	}

	t := &Treatment{
		s: State{
			ID:            id,
			CheckInID:     checkInID,
			PatientID:     patientID,
			StaffID:       d.StaffID,
			DepartmentID:  d.DepartmentID,
			Category:      d.Category,
			Status:        StatusPending,
			Note:          strings.TrimSpace(d.Note),
			TreatmentDate: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		detail: detail,
	}

	if err := t.record(EventTreatmentCreated, &CreatedData{
		TreatmentID:   id,
		PatientID:     patientID,
		CheckInID:     checkInID,
		StaffID:       d.StaffID,
		DepartmentID:  d.DepartmentID,
		Category:      d.Category,
		TreatmentDate: now,
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Restore rebuilds a treatment and its detail from persisted state
func Restore(s State, detail Detail) *Treatment {
	return &Treatment{s: s, detail: detail}
}

// State returns a copy of the current state
func (t *Treatment) State() State { return t.s }

// Detail returns the category sub-record
func (t *Treatment) Detail() Detail { return t.detail }

func (t *Treatment) ID() uuid.UUID            { return t.s.ID }
func (t *Treatment) CheckInID() *uuid.UUID    { return t.s.CheckInID }
func (t *Treatment) PatientID() uuid.UUID     { return t.s.PatientID }
func (t *Treatment) StaffID() uuid.UUID       { return t.s.StaffID }
func (t *Treatment) DepartmentID() *uuid.UUID { return t.s.DepartmentID }
func (t *Treatment) Category() Category       { return t.s.Category }
func (t *Treatment) Status() Status           { return t.s.Status }
func (t *Treatment) Note() string             { return t.s.Note }
func (t *Treatment) Version() int             { return t.s.Version }

// MarkPersisted advances the version after a successful write
func (t *Treatment) MarkPersisted() {
	t.s.Version++
	t.ClearChanges()
}

func (t *Treatment) isClosed() bool {
	return t.s.Status == StatusCompleted || t.s.Status == StatusCancelled
}

// Start moves a pending treatment to IN_PROGRESS
func (t *Treatment) Start(now time.Time) error {
	if t.s.Status != StatusPending {
		return t.invalid("start")
	}
	if err := t.record(EventTreatmentStarted, &TransitionData{
		TreatmentID: t.s.ID,
		PatientID:   t.s.PatientID,
		At:          now,
	}); err != nil {
		return err
	}
	started := now
	t.s.Status = StatusInProgress
	t.s.StartedAt = &started
	t.s.UpdatedAt = now
	return nil
}

// Complete closes the encounter. A blank note keeps the existing one.
func (t *Treatment) Complete(note string, now time.Time) error {
	if t.isClosed() {
		return t.invalid("complete")
	}
	if err := t.record(EventTreatmentCompleted, &CompletedData{
		TreatmentID: t.s.ID,
		PatientID:   t.s.PatientID,
		CheckInID:   t.s.CheckInID,
		StaffID:     t.s.StaffID,
		Category:    t.s.Category,
		CompletedAt: now,
	}); err != nil {
		return err
	}
	ended := now
	if note = strings.TrimSpace(note); note != "" {
		t.s.Note = note
	}
	t.s.Status = StatusCompleted
	t.s.EndedAt = &ended
	t.s.UpdatedAt = now
	return nil
}

// Cancel cancels a treatment that has not completed
func (t *Treatment) Cancel(reason string, now time.Time) error {
	if t.isClosed() {
		return t.invalid("cancel")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	if err := t.record(EventTreatmentCancelled, &CancelledData{
		TreatmentID: t.s.ID,
		PatientID:   t.s.PatientID,
		Reason:      reason,
		CancelledAt: now,
	}); err != nil {
		return err
	}
	t.s.Status = StatusCancelled
	t.s.CancelReason = reason
	t.s.UpdatedAt = now
	return nil
}

// Edit lists the fields Update changes; nil fields are left alone
type Edit struct {
	Note         *string
	DepartmentID *uuid.UUID
	StaffID      *uuid.UUID
}

// Update edits an open treatment
func (t *Treatment) Update(c Edit, now time.Time) error {
	if t.isClosed() {
		return t.invalid("update")
	}
	if c.StaffID != nil && *c.StaffID == uuid.Nil {
		return apperr.New(apperr.Validation, "attending staff cannot be cleared")
	}
	if err := t.record(EventTreatmentUpdated, &UpdatedData{
		TreatmentID:  t.s.ID,
		PatientID:    t.s.PatientID,
		StaffID:      c.StaffID,
		DepartmentID: c.DepartmentID,
		UpdatedAt:    now,
	}); err != nil {
		return err
	}
	if c.Note != nil {
		t.s.Note = strings.TrimSpace(*c.Note)
	}
	if c.DepartmentID != nil {
		dept := *c.DepartmentID
		t.s.DepartmentID = &dept
	}
	if c.StaffID != nil {
		t.s.StaffID = *c.StaffID
	}
	t.s.UpdatedAt = now
	return nil
}

func (t *Treatment) invalid(op string) error {
	return apperr.Newf(apperr.InvalidTransition, "cannot %s treatment in status %s", op, t.s.Status)
}

func (t *Treatment) record(et event.Type, data interface{}) error {
	e, err := event.New(AggregateType, t.s.ID, et, data)
	if err != nil {
		return err
	}
	e.Version = t.s.Version + 1
	e.WithPatient(t.s.PatientID)
	t.Record(e)
	return nil
}
