// Package checkin implements the check-in aggregate: a patient's arrival at
// the front desk, either walk-in or derived from a completed reservation.
package checkin

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

// AggregateType tags check-in events
const AggregateType = "CheckIn"

// FromReservationComment is stored on check-ins created by reservation completion
const FromReservationComment = "created from reservation"

// Status represents check-in status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// State is the persisted form of a check-in
type State struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	StaffID       *uuid.UUID `json:"staff_id,omitempty"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	CheckInAt     time.Time  `json:"check_in_at"`
	Status        Status     `json:"status"`
	Comment       string     `json:"comment,omitempty"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CheckIn is the check-in aggregate root
type CheckIn struct {
	s State
	event.Recorder
}

// New registers a walk-in check-in
func New(id, patientID uuid.UUID, staffID *uuid.UUID, comment string, now time.Time) (*CheckIn, error) {
	if patientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient is required")
	}
	c := &CheckIn{s: State{
		ID:        id,
		PatientID: patientID,
		StaffID:   staffID,
		CheckInAt: now,
		Status:    StatusPending,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: now,
		UpdatedAt: now,
	}}
	if err := c.record(EventCheckInCreated, c.createdData()); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromReservation creates the check-in for a completed reservation.
// The check-in date is the reservation's scheduled time.
func NewFromReservation(id, reservationID, patientID uuid.UUID, staffID *uuid.UUID, scheduledAt, now time.Time) (*CheckIn, error) {
	if patientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient is required")
	}
	resID := reservationID
	c := &CheckIn{s: State{
		ID:            id,
		PatientID:     patientID,
		StaffID:       staffID,
		ReservationID: &resID,
		CheckInAt:     scheduledAt,
		Status:        StatusPending,
		Comment:       FromReservationComment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
	if err := c.record(EventCheckInCreated, c.createdData()); err != nil {
		return nil, err
	}
	return c, nil
}

// Restore rebuilds a check-in from persisted state
func Restore(s State) *CheckIn {
	return &CheckIn{s: s}
}

// State returns a copy of the current state
func (c *CheckIn) State() State { return c.s }

func (c *CheckIn) ID() uuid.UUID             { return c.s.ID }
func (c *CheckIn) PatientID() uuid.UUID      { return c.s.PatientID }
func (c *CheckIn) StaffID() *uuid.UUID       { return c.s.StaffID }
func (c *CheckIn) ReservationID() *uuid.UUID { return c.s.ReservationID }
func (c *CheckIn) CheckInAt() time.Time      { return c.s.CheckInAt }
func (c *CheckIn) Status() Status            { return c.s.Status }
func (c *CheckIn) Version() int              { return c.s.Version }

// MarkPersisted advances the version after a successful write
func (c *CheckIn) MarkPersisted() {
	c.s.Version++
	c.ClearChanges()
}

// Complete marks the patient as received and ready for treatment
func (c *CheckIn) Complete(now time.Time) error {
	if c.s.Status != StatusPending {
		return apperr.Newf(apperr.InvalidTransition, "cannot complete check-in in status %s", c.s.Status)
	}
	if err := c.record(EventCheckInCompleted, &TransitionData{
		CheckInID: c.s.ID,
		PatientID: c.s.PatientID,
		At:        now,
	}); err != nil {
		return err
	}
	c.s.Status = StatusCompleted
	c.s.UpdatedAt = now
	return nil
}

// Cancel withdraws a pending check-in
func (c *CheckIn) Cancel(now time.Time) error {
	if c.s.Status != StatusPending {
		return apperr.Newf(apperr.InvalidTransition, "cannot cancel check-in in status %s", c.s.Status)
	}
	if err := c.record(EventCheckInCancelled, &TransitionData{
		CheckInID: c.s.ID,
		PatientID: c.s.PatientID,
		At:        now,
	}); err != nil {
		return err
	}
	c.s.Status = StatusCancelled
	c.s.UpdatedAt = now
	return nil
}

func (c *CheckIn) createdData() *CreatedData {
	return &CreatedData{
		CheckInID:     c.s.ID,
		PatientID:     c.s.PatientID,
		StaffID:       c.s.StaffID,
		ReservationID: c.s.ReservationID,
		CheckInAt:     c.s.CheckInAt,
	}
}

func (c *CheckIn) record(t event.Type, data interface{}) error {
	e, err := event.New(AggregateType, c.s.ID, t, data)
	if err != nil {
		return err
	}
	e.Version = c.s.Version + 1
	e.WithPatient(c.s.PatientID)
	c.Record(e)
	return nil
}
