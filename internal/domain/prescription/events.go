package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

const (
	EventPrescriptionCreated     event.Type = "PrescriptionCreated"
	EventPrescriptionItemAdded   event.Type = "PrescriptionItemAdded"
	EventPrescriptionItemRemoved event.Type = "PrescriptionItemRemoved"
	EventPrescriptionItemUpdated event.Type = "PrescriptionItemUpdated"
	EventPrescriptionPrescribed  event.Type = "PrescriptionPrescribed"
	EventPrescriptionDispensed   event.Type = "PrescriptionDispensed"
	EventPrescriptionCancelled   event.Type = "PrescriptionCancelled"
	EventPrescriptionUpdated     event.Type = "PrescriptionUpdated"
)

// CreatedData contains prescription creation details
type CreatedData struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	TreatmentID    uuid.UUID `json:"treatment_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	StaffID        uuid.UUID `json:"staff_id"`
	Type           Type      `json:"type"`
	ItemCount      int       `json:"item_count"`
}

// ItemData identifies an added, removed or edited item
type ItemData struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	ItemID         uuid.UUID `json:"item_id"`
	DrugCode       string    `json:"drug_code"`
	TotalQuantity  int       `json:"total_quantity"`
}

// TransitionData is the payload of prescribe and dispense events
type TransitionData struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	TreatmentID    uuid.UUID `json:"treatment_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ItemCount      int       `json:"item_count"`
	At             time.Time `json:"at"`
}

// CancelledData contains cancellation details
type CancelledData struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Reason         string    `json:"reason,omitempty"`
	CancelledAt    time.Time `json:"cancelled_at"`
}

// UpdatedData summarises a memo or item list edit
type UpdatedData struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ItemCount      int       `json:"item_count"`
	ItemsReplaced  bool      `json:"items_replaced"`
}

func itemData(prescriptionID uuid.UUID, it *Item) *ItemData {
	return &ItemData{
		PrescriptionID: prescriptionID,
		ItemID:         it.ID,
		DrugCode:       it.DrugCode,
		TotalQuantity:  it.TotalQuantity,
	}
}
