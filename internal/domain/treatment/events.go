package treatment

import (
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

const (
	EventTreatmentCreated   event.Type = "TreatmentCreated"
	EventTreatmentStarted   event.Type = "TreatmentStarted"
	EventTreatmentCompleted event.Type = "TreatmentCompleted"
	EventTreatmentCancelled event.Type = "TreatmentCancelled"
	EventTreatmentUpdated   event.Type = "TreatmentUpdated"
)

// CreatedData contains treatment registration details
type CreatedData struct {
	TreatmentID   uuid.UUID  `json:"treatment_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	CheckInID     *uuid.UUID `json:"check_in_id,omitempty"`
	StaffID       uuid.UUID  `json:"staff_id"`
	DepartmentID  *uuid.UUID `json:"department_id,omitempty"`
	Category      Category   `json:"category"`
	TreatmentDate time.Time  `json:"treatment_date"`
}

// TransitionData is the payload of the start event
type TransitionData struct {
	TreatmentID uuid.UUID `json:"treatment_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	At          time.Time `json:"at"`
}

// CompletedData contains completion details
type CompletedData struct {
	TreatmentID uuid.UUID  `json:"treatment_id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	CheckInID   *uuid.UUID `json:"check_in_id,omitempty"`
	StaffID     uuid.UUID  `json:"staff_id"`
	Category    Category   `json:"category"`
	CompletedAt time.Time  `json:"completed_at"`
}

// CancelledData contains cancellation details
type CancelledData struct {
	TreatmentID uuid.UUID `json:"treatment_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// UpdatedData lists reassigned references
type UpdatedData struct {
	TreatmentID  uuid.UUID  `json:"treatment_id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	StaffID      *uuid.UUID `json:"staff_id,omitempty"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
