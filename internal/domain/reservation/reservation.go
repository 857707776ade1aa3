// Package reservation implements the reservation aggregate: a booked future
// clinical visit moving PENDING -> CONFIRMED -> COMPLETED, or to CANCELLED.
package reservation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

// AggregateType tags reservation events
const AggregateType = "Reservation"

// DefaultCancelReason is stored when a cancellation carries no reason
const DefaultCancelReason = "reservation cancelled"

// Status represents reservation status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// State is the persisted form of a reservation
type State struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	StaffID      *uuid.UUID `json:"staff_id,omitempty"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       Status     `json:"status"`
	Memo         string     `json:"memo,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Reservation is the reservation aggregate root
type Reservation struct {
	s State
	event.Recorder
}

// New books a reservation. The slot must be strictly after now.
func New(id, patientID uuid.UUID, staffID *uuid.UUID, scheduledAt time.Time, memo string, now time.Time) (*Reservation, error) {
	if patientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient is required")
	}
	if !scheduledAt.After(now) {
		return nil, apperr.Newf(apperr.InvalidSchedule, "reservation time %s is not in the future", scheduledAt.Format(time.RFC3339))
	}

	r := &Reservation{s: State{
		ID:          id,
		PatientID:   patientID,
		StaffID:     staffID,
		ScheduledAt: scheduledAt,
		Status:      StatusPending,
		Memo:        strings.TrimSpace(memo),
		CreatedAt:   now,
		UpdatedAt:   now,
	}}

	if err := r.record(EventReservationCreated, &CreatedData{
		ReservationID: id,
		PatientID:     patientID,
		StaffID:       staffID,
		ScheduledAt:   scheduledAt,
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Restore rebuilds a reservation from persisted state
func Restore(s State) *Reservation {
	return &Reservation{s: s}
}

// State returns a copy of the current state
func (r *Reservation) State() State { return r.s }

func (r *Reservation) ID() uuid.UUID          { return r.s.ID }
func (r *Reservation) PatientID() uuid.UUID   { return r.s.PatientID }
func (r *Reservation) StaffID() *uuid.UUID    { return r.s.StaffID }
func (r *Reservation) ScheduledAt() time.Time { return r.s.ScheduledAt }
func (r *Reservation) Status() Status         { return r.s.Status }
func (r *Reservation) CancelReason() string   { return r.s.CancelReason }
func (r *Reservation) Version() int           { return r.s.Version }

// IsOpen reports whether the reservation can still be acted upon
func (r *Reservation) IsOpen() bool {
	return r.s.Status == StatusPending || r.s.Status == StatusConfirmed
}

// MarkPersisted advances the version after a successful write
func (r *Reservation) MarkPersisted() {
	r.s.Version++
	r.ClearChanges()
}

// Confirm moves a pending reservation to CONFIRMED
func (r *Reservation) Confirm(now time.Time) error {
	switch r.s.Status {
	case StatusConfirmed:
		return apperr.New(apperr.AlreadyConfirmed, "")
	case StatusPending:
	default:
		return r.invalid("confirm")
	}

	if err := r.record(EventReservationConfirmed, &TransitionData{
		ReservationID: r.s.ID,
		PatientID:     r.s.PatientID,
		At:            now,
	}); err != nil {
		return err
	}
	r.s.Status = StatusConfirmed
	r.s.UpdatedAt = now
	return nil
}

// Complete marks the visit as having taken place
func (r *Reservation) Complete(now time.Time) error {
	if !r.IsOpen() {
		return r.invalid("complete")
	}

	if err := r.record(EventReservationCompleted, &TransitionData{
		ReservationID: r.s.ID,
		PatientID:     r.s.PatientID,
		At:            now,
	}); err != nil {
		return err
	}
	r.s.Status = StatusCompleted
	r.s.UpdatedAt = now
	return nil
}

// Cancel cancels an open reservation
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if !r.IsOpen() {
		return r.invalid("cancel")
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	if err := r.record(EventReservationCancelled, &CancelledData{
		ReservationID: r.s.ID,
		PatientID:     r.s.PatientID,
		Reason:        reason,
		CancelledAt:   now,
	}); err != nil {
		return err
	}
	r.s.Status = StatusCancelled
	r.s.CancelReason = reason
	r.s.UpdatedAt = now
	return nil
}

// Reschedule moves an open reservation to a new future slot
func (r *Reservation) Reschedule(scheduledAt time.Time, reason string, now time.Time) error {
	if !r.IsOpen() {
		return r.invalid("reschedule")
	}
	if !scheduledAt.After(now) {
		return apperr.Newf(apperr.InvalidSchedule, "reservation time %s is not in the future", scheduledAt.Format(time.RFC3339))
	}

	reason = strings.TrimSpace(reason)
	if err := r.record(EventReservationRescheduled, &RescheduledData{
		ReservationID: r.s.ID,
		PatientID:     r.s.PatientID,
		PreviousAt:    r.s.ScheduledAt,
		ScheduledAt:   scheduledAt,
		Reason:        reason,
	}); err != nil {
		return err
	}
	r.s.ScheduledAt = scheduledAt
	if reason != "" {
		r.s.Memo = reason
	}
	r.s.UpdatedAt = now
	return nil
}

func (r *Reservation) invalid(op string) error {
	return apperr.Newf(apperr.InvalidTransition, "cannot %s reservation in status %s", op, r.s.Status)
}

func (r *Reservation) record(t event.Type, data interface{}) error {
	e, err := event.New(AggregateType, r.s.ID, t, data)
	if err != nil {
		return err
	}
	e.Version = r.s.Version + 1
	e.WithPatient(r.s.PatientID)
	r.Record(e)
	return nil
}
