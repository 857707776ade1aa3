package reservation

import (
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

const (
	EventReservationCreated     event.Type = "ReservationCreated"
	EventReservationConfirmed   event.Type = "ReservationConfirmed"
	EventReservationCompleted   event.Type = "ReservationCompleted"
	EventReservationCancelled   event.Type = "ReservationCancelled"
	EventReservationRescheduled event.Type = "ReservationRescheduled"
)

// CreatedData contains reservation booking details
type CreatedData struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	StaffID       *uuid.UUID `json:"staff_id,omitempty"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
}

// TransitionData is the payload of confirm and complete events
type TransitionData struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	At            time.Time `json:"at"`
}

// CancelledData contains cancellation details
type CancelledData struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

// RescheduledData contains the old and new slot
type RescheduledData struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	PreviousAt    time.Time `json:"previous_at"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Reason        string    `json:"reason,omitempty"`
}
