// Package payment implements the payment aggregate that settles one completed
// treatment. Money moves between the collected (current) and outstanding
// (remain) buckets; their sum always equals the total.
package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/money"
)

// AggregateType tags payment events
const AggregateType = "Payment"

// Status represents payment status
type Status string

const (
	StatusUnpaid    Status = "UNPAID"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// Method is how money was collected or returned
type Method string

const (
	MethodCash     Method = "CASH"
	MethodCard     Method = "CARD"
	MethodTransfer Method = "TRANSFER"
	MethodMobile   Method = "MOBILE"
)

// ParseMethod validates a payment method name
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodMobile:
		return m, nil
	case "":
		return "", apperr.New(apperr.Validation, "payment method is required")
	}
	return "", apperr.Newf(apperr.Validation, "unknown payment method %q", s)
}

// State is the persisted form of a payment
type State struct {
	ID             uuid.UUID   `json:"id"`
	TreatmentID    uuid.UUID   `json:"treatment_id"`
	PatientID      *uuid.UUID  `json:"patient_id,omitempty"`
	Status         Status      `json:"status"`
	Method         Method      `json:"method,omitempty"`
	Total          money.Money `json:"total"`
	SelfPay        money.Money `json:"self_pay"`
	Insurance      money.Money `json:"insurance"`
	Current        money.Money `json:"current"`
	Remain         money.Money `json:"remain"`
	ApprovalNumber string      `json:"approval_number,omitempty"`
	ApprovalDate   *time.Time  `json:"approval_date,omitempty"`
	CardCompany    string      `json:"card_company,omitempty"`
	PaymentDate    time.Time   `json:"payment_date"`
	CancelReason   string      `json:"cancel_reason,omitempty"`
	RefundAmount   money.Money `json:"refund_amount"`
	RefundMethod   Method      `json:"refund_method,omitempty"`
	RefundDate     *time.Time  `json:"refund_date,omitempty"`
	Version        int         `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Payment is the payment aggregate root
type Payment struct {
	s State
	event.Recorder
}

// Amounts is the fee split a payment starts from
type Amounts struct {
	Total     money.Money
	SelfPay   money.Money
	Insurance money.Money
}

// Initialize opens an UNPAID payment for a treatment. Total must equal
// self-pay plus insurance.
func Initialize(id, treatmentID uuid.UUID, patientID *uuid.UUID, amt Amounts, now time.Time) (*Payment, error) {
	if treatmentID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "treatment is required")
	}
	sum, err := amt.SelfPay.Add(amt.Insurance)
	if err != nil {
		return nil, err
	}
	if !amt.Total.Equal(sum) {
		return nil, apperr.Newf(apperr.AmountMismatch, "total %s does not equal self-pay %s + insurance %s",
			amt.Total, amt.SelfPay, amt.Insurance)
	}

	p := &Payment{s: State{
		ID:          id,
		TreatmentID: treatmentID,
		PatientID:   patientID,
		Status:      StatusUnpaid,
		Total:       amt.Total,
		SelfPay:     amt.SelfPay,
		Insurance:   amt.Insurance,
		Current:     money.Zero(),
		Remain:      amt.Total,
		PaymentDate: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}

	if err := p.record(EventPaymentCreated, &CreatedData{
		PaymentID:   id,
		TreatmentID: treatmentID,
		PatientID:   patientID,
		Total:       amt.Total,
		SelfPay:     amt.SelfPay,
		Insurance:   amt.Insurance,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Restore rebuilds a payment from persisted state
func Restore(s State) *Payment {
	return &Payment{s: s}
}

// State returns a copy of the current state
func (p *Payment) State() State { return p.s }

func (p *Payment) ID() uuid.UUID          { return p.s.ID }
func (p *Payment) TreatmentID() uuid.UUID { return p.s.TreatmentID }
func (p *Payment) PatientID() *uuid.UUID  { return p.s.PatientID }
func (p *Payment) Status() Status         { return p.s.Status }
func (p *Payment) Method() Method         { return p.s.Method }
func (p *Payment) Total() money.Money     { return p.s.Total }
func (p *Payment) Current() money.Money   { return p.s.Current }
func (p *Payment) Remain() money.Money    { return p.s.Remain }
func (p *Payment) Version() int           { return p.s.Version }

// MarkPersisted advances the version after a successful write
func (p *Payment) MarkPersisted() {
	p.s.Version++
	p.ClearChanges()
}

func (p *Payment) settled() bool {
	switch p.s.Status {
	case StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// PartialPay collects part of the outstanding amount. The amount must be
// strictly below what remains; use Complete to settle the rest.
func (p *Payment) PartialPay(amount money.Money, now time.Time) error {
	if p.settled() {
		return p.invalid("partially pay")
	}
	if amount.IsZero() {
		return apperr.New(apperr.InvalidAmount, "payment amount must be greater than zero")
	}
	if amount.IsGreaterThanOrEqual(p.s.Remain) {
		return apperr.Newf(apperr.ExceedsRemaining, "amount %s is not below remaining %s", amount, p.s.Remain)
	}
	remain, err := p.s.Remain.Subtract(amount)
	if err != nil {
		return err
	}
	current, err := p.s.Current.Add(amount)
	if err != nil {
		return err
	}
	status := StatusPartial
	if remain.IsZero() {
		status = StatusPaid
	}

	if err := p.record(EventPaymentPartiallyPaid, &PartiallyPaidData{
		PaymentID: p.s.ID,
		Amount:    amount,
		Current:   current,
		Remain:    remain,
		PaidAt:    now,
	}); err != nil {
		return err
	}
	p.s.Current = current
	p.s.Remain = remain
	p.s.Status = status
	p.s.PaymentDate = now
	p.s.UpdatedAt = now
	return nil
}

// Receipt carries the approval metadata of a completed payment
type Receipt struct {
	Method         Method
	ApprovalNumber string
	CardCompany    string
}

// Complete settles the full total
func (p *Payment) Complete(r Receipt, now time.Time) error {
	if p.settled() {
		return p.invalid("complete")
	}
	method, err := ParseMethod(string(r.Method))
	if err != nil {
		return err
	}

	if err := p.record(EventPaymentCompleted, &CompletedData{
		PaymentID:      p.s.ID,
		TreatmentID:    p.s.TreatmentID,
		PatientID:      p.s.PatientID,
		Total:          p.s.Total,
		Method:         method,
		ApprovalNumber: strings.TrimSpace(r.ApprovalNumber),
		CompletedAt:    now,
	}); err != nil {
		return err
	}
	p.s.Status = StatusPaid
	p.s.Method = method
	p.s.ApprovalNumber = strings.TrimSpace(r.ApprovalNumber)
	p.s.CardCompany = strings.TrimSpace(r.CardCompany)
	p.s.ApprovalDate = &now
	p.s.PaymentDate = now
	p.s.Current = p.s.Total
	p.s.Remain = money.Zero()
	p.s.UpdatedAt = now
	return nil
}

// Cancel voids the payment. A reason is mandatory.
func (p *Payment) Cancel(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.New(apperr.Validation, "cancel reason is required")
	}
	if p.s.Status == StatusRefunded {
		return p.invalid("cancel")
	}

	if err := p.record(EventPaymentCancelled, &CancelledData{
		PaymentID:   p.s.ID,
		Reason:      reason,
		CancelledAt: now,
	}); err != nil {
		return err
	}
	p.s.Status = StatusCancelled
	p.s.CancelReason = reason
	p.s.UpdatedAt = now
	return nil
}

// Refund returns part of the collected money. An empty method refunds
// through the original payment method. Amount checks come before the
// status check.
func (p *Payment) Refund(amount money.Money, method Method, now time.Time) error {
	if amount.IsZero() {
		return apperr.New(apperr.InvalidAmount, "refund amount must be greater than zero")
	}
	if amount.IsGreaterThanOrEqual(p.s.Current) {
		return apperr.Newf(apperr.ExceedsCollected, "refund %s is not below collected %s", amount, p.s.Current)
	}
	if p.s.Status != StatusPaid && p.s.Status != StatusPartial {
		return p.invalid("refund")
	}
	if method == "" {
		method = p.s.Method
	} else {
		var err error
		if method, err = ParseMethod(string(method)); err != nil {
			return err
		}
	}
	current, err := p.s.Current.Subtract(amount)
	if err != nil {
		return err
	}
	remain, err := p.s.Remain.Add(amount)
	if err != nil {
		return err
	}

	if err := p.record(EventPaymentRefunded, &RefundedData{
		PaymentID:  p.s.ID,
		PatientID:  p.s.PatientID,
		Amount:     amount,
		Method:     method,
		Current:    current,
		Remain:     remain,
		RefundedAt: now,
	}); err != nil {
		return err
	}
	p.s.Status = StatusRefunded
	p.s.RefundAmount = amount
	p.s.RefundMethod = method
	p.s.RefundDate = &now
	p.s.Current = current
	p.s.Remain = remain
	p.s.UpdatedAt = now
	return nil
}

// UpdatePaymentMethod changes the recorded method in any status
func (p *Payment) UpdatePaymentMethod(method Method, now time.Time) error {
	m, err := ParseMethod(string(method))
	if err != nil {
		return err
	}
	if err := p.record(EventPaymentMethodChanged, &MethodChangedData{
		PaymentID: p.s.ID,
		From:      p.s.Method,
		To:        m,
	}); err != nil {
		return err
	}
	p.s.Method = m
	p.s.UpdatedAt = now
	return nil
}

func (p *Payment) invalid(op string) error {
	return apperr.Newf(apperr.InvalidTransition, "cannot %s payment in status %s", op, p.s.Status)
}

func (p *Payment) record(t event.Type, data interface{}) error {
	e, err := event.New(AggregateType, p.s.ID, t, data)
	if err != nil {
		return err
	}
	e.Version = p.s.Version + 1
	if p.s.PatientID != nil {
		e.WithPatient(*p.s.PatientID)
	}
	p.Record(e)
	return nil
}
