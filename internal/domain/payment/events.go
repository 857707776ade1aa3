package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/money"
)

const (
	EventPaymentCreated       event.Type = "PaymentCreated"
	EventPaymentPartiallyPaid event.Type = "PaymentPartiallyPaid"
	EventPaymentCompleted     event.Type = "PaymentCompleted"
	EventPaymentCancelled     event.Type = "PaymentCancelled"
	EventPaymentRefunded      event.Type = "PaymentRefunded"
	EventPaymentMethodChanged event.Type = "PaymentMethodChanged"
)

// CreatedData contains the opening fee split
type CreatedData struct {
	PaymentID   uuid.UUID   `json:"payment_id"`
	TreatmentID uuid.UUID   `json:"treatment_id"`
	PatientID   *uuid.UUID  `json:"patient_id,omitempty"`
	Total       money.Money `json:"total"`
	SelfPay     money.Money `json:"self_pay"`
	Insurance   money.Money `json:"insurance"`
}

type PartiallyPaidData struct {
	PaymentID uuid.UUID   `json:"payment_id"`
	Amount    money.Money `json:"amount"`
	Current   money.Money `json:"current"`
	Remain    money.Money `json:"remain"`
	PaidAt    time.Time   `json:"paid_at"`
}

// CompletedData contains settlement details
type CompletedData struct {
	PaymentID      uuid.UUID   `json:"payment_id"`
	TreatmentID    uuid.UUID   `json:"treatment_id"`
	PatientID      *uuid.UUID  `json:"patient_id,omitempty"`
	Total          money.Money `json:"total"`
	Method         Method      `json:"method"`
	ApprovalNumber string      `json:"approval_number,omitempty"`
	CompletedAt    time.Time   `json:"completed_at"`
}

type CancelledData struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// RefundedData contains refund details and the resulting balances
type RefundedData struct {
	PaymentID  uuid.UUID   `json:"payment_id"`
	PatientID  *uuid.UUID  `json:"patient_id,omitempty"`
	Amount     money.Money `json:"amount"`
	Method     Method      `json:"method,omitempty"`
	Current    money.Money `json:"current"`
	Remain     money.Money `json:"remain"`
	RefundedAt time.Time   `json:"refunded_at"`
}

type MethodChangedData struct {
	PaymentID uuid.UUID `json:"payment_id"`
	From      Method    `json:"from,omitempty"`
	To        Method    `json:"to"`
}
