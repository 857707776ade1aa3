package checkin

import (
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

const (
	EventCheckInCreated   event.Type = "CheckInCreated"
	EventCheckInCompleted event.Type = "CheckInCompleted"
	EventCheckInCancelled event.Type = "CheckInCancelled"
)

// CreatedData contains check-in registration details
type CreatedData struct {
	CheckInID     uuid.UUID  `json:"check_in_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	StaffID       *uuid.UUID `json:"staff_id,omitempty"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	CheckInAt     time.Time  `json:"check_in_at"`
}

// TransitionData is the payload of complete and cancel events
type TransitionData struct {
	CheckInID uuid.UUID `json:"check_in_id"`
	PatientID uuid.UUID `json:"patient_id"`
	At        time.Time `json:"at"`
}
