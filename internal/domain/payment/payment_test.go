package payment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/money"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func won(v int64) money.Money { return money.MustOf(v) }

func newPayment(t *testing.T) *Payment {
	t.Helper()
	patient := uuid.New()
	p, err := Initialize(uuid.New(), uuid.New(), &patient, Amounts{
		Total:     won(10000),
		SelfPay:   won(3000),
		Insurance: won(7000),
	}, now)
	require.NoError(t, err)
	return p
}

func withStatus(t *testing.T, status Status) *Payment {
	t.Helper()
	p := newPayment(t)
	s := p.State()
	s.Status = status
	s.Current = won(5000)
	s.Remain = won(5000)
	return Restore(s)
}

func assertBalanced(t *testing.T, p *Payment) {
	t.Helper()
	s := p.State()
	collected, err := s.Current.Add(s.Remain)
	require.NoError(t, err)
	assert.True(t, collected.Equal(s.Total), "current %s + remain %s != total %s", s.Current, s.Remain, s.Total)
	split, err := s.SelfPay.Add(s.Insurance)
	require.NoError(t, err)
	assert.True(t, split.Equal(s.Total))
}

func TestInitialize(t *testing.T) {
	p := newPayment(t)
	assert.Equal(t, StatusUnpaid, p.Status())
	assert.True(t, p.Current().IsZero())
	assert.True(t, p.Remain().Equal(won(10000)))
	assertBalanced(t, p)

	_, err := Initialize(uuid.New(), uuid.New(), nil, Amounts{Total: won(10000), SelfPay: won(3000), Insurance: won(6000)}, now)
	assert.ErrorIs(t, err, apperr.AmountMismatch)

	_, err = Initialize(uuid.New(), uuid.Nil, nil, Amounts{}, now)
	assert.ErrorIs(t, err, apperr.Validation)
}

func TestPartialPayStrictBoundary(t *testing.T) {
	p := newPayment(t)

	require.NoError(t, p.PartialPay(won(4000), now))
	assert.Equal(t, StatusPartial, p.Status())
	assert.Equal(t, int64(4000), p.Current().Amount())
	assert.Equal(t, int64(6000), p.Remain().Amount())

	err := p.PartialPay(won(6000), now)
	assert.ErrorIs(t, err, apperr.ExceedsRemaining)
	assert.Equal(t, int64(6000), p.Remain().Amount())

	require.NoError(t, p.PartialPay(won(5999), now))
	assert.Equal(t, StatusPartial, p.Status())
	assert.Equal(t, int64(1), p.Remain().Amount())
	assertBalanced(t, p)

	require.NoError(t, p.Complete(Receipt{Method: MethodCash}, now))
	assert.Equal(t, StatusPaid, p.Status())
	assert.True(t, p.Remain().IsZero())
	assertBalanced(t, p)
}

func TestPartialPayRejectsZero(t *testing.T) {
	p := newPayment(t)
	assert.ErrorIs(t, p.PartialPay(money.Zero(), now), apperr.InvalidAmount)
}

func TestCompleteRecordsApproval(t *testing.T) {
	p := newPayment(t)
	require.NoError(t, p.Complete(Receipt{Method: "card", ApprovalNumber: "A-1029", CardCompany: "Shinhan"}, now))

	s := p.State()
	assert.Equal(t, MethodCard, s.Method)
	assert.Equal(t, "A-1029", s.ApprovalNumber)
	assert.Equal(t, "Shinhan", s.CardCompany)
	require.NotNil(t, s.ApprovalDate)
	assert.Equal(t, now, *s.ApprovalDate)
	assertBalanced(t, p)

	p2 := newPayment(t)
	assert.ErrorIs(t, p2.Complete(Receipt{Method: "CHEQUE"}, now), apperr.Validation)
	assert.Equal(t, StatusUnpaid, p2.Status())
}

func TestRefund(t *testing.T) {
	p := newPayment(t)
	require.NoError(t, p.Complete(Receipt{Method: MethodCard}, now))

	assert.ErrorIs(t, p.Refund(money.Zero(), MethodCash, now), apperr.InvalidAmount)
	assert.ErrorIs(t, p.Refund(won(10000), MethodCash, now), apperr.ExceedsCollected)

	require.NoError(t, p.Refund(won(2500), "", now))
	s := p.State()
	assert.Equal(t, StatusRefunded, s.Status)
	assert.Equal(t, MethodCard, s.RefundMethod)
	assert.Equal(t, int64(2500), s.RefundAmount.Amount())
	assert.Equal(t, int64(7500), s.Current.Amount())
	assert.Equal(t, int64(2500), s.Remain.Amount())
	assertBalanced(t, p)
}

func TestCancelRequiresReason(t *testing.T) {
	p := newPayment(t)
	assert.ErrorIs(t, p.Cancel("  ", now), apperr.Validation)
	assert.Equal(t, StatusUnpaid, p.Status())

	require.NoError(t, p.Cancel("duplicate bill", now))
	assert.Equal(t, "duplicate bill", p.State().CancelReason)
}

func TestCancelIsBlockedOnlyAfterRefund(t *testing.T) {
	p := withStatus(t, StatusCancelled)
	require.NoError(t, p.Cancel("billed twice", now))
	assert.Equal(t, StatusCancelled, p.Status())
	assert.Equal(t, "billed twice", p.State().CancelReason)

	p = withStatus(t, StatusRefunded)
	assert.ErrorIs(t, p.Cancel("too late", now), apperr.InvalidTransition)
}

func TestRefundChecksAmountBeforeStatus(t *testing.T) {
	p := newPayment(t)
	assert.ErrorIs(t, p.Refund(money.Zero(), MethodCash, now), apperr.InvalidAmount)
	assert.ErrorIs(t, p.Refund(won(100), MethodCash, now), apperr.ExceedsCollected)

	p = withStatus(t, StatusCancelled)
	assert.ErrorIs(t, p.Refund(won(6000), MethodCash, now), apperr.ExceedsCollected)
	assert.ErrorIs(t, p.Refund(won(100), MethodCash, now), apperr.InvalidTransition)
}

func TestUpdatePaymentMethodHasNoStatusGuard(t *testing.T) {
	for _, status := range []Status{StatusUnpaid, StatusPartial, StatusPaid, StatusCancelled, StatusRefunded} {
		p := withStatus(t, status)
		require.NoError(t, p.UpdatePaymentMethod("mobile", now))
		assert.Equal(t, MethodMobile, p.Method())
	}

	p := newPayment(t)
	assert.ErrorIs(t, p.UpdatePaymentMethod("", now), apperr.Validation)
	assert.ErrorIs(t, p.UpdatePaymentMethod("BITCOIN", now), apperr.Validation)
}

func TestTransitionClosure(t *testing.T) {
	ops := map[string]func(p *Payment) error{
		"partialPay": func(p *Payment) error { return p.PartialPay(won(100), now) },
		"complete":   func(p *Payment) error { return p.Complete(Receipt{Method: MethodCash}, now) },
		"cancel":     func(p *Payment) error { return p.Cancel("reason", now) },
		"refund":     func(p *Payment) error { return p.Refund(won(100), MethodCash, now) },
	}

	allowed := map[Status]map[string]bool{
		StatusUnpaid:    {"partialPay": true, "complete": true, "cancel": true},
		StatusPartial:   {"partialPay": true, "complete": true, "cancel": true, "refund": true},
		StatusPaid:      {"cancel": true, "refund": true},
		StatusCancelled: {"cancel": true},
		StatusRefunded:  {},
	}

	for status, ok := range allowed {
		for op, fn := range ops {
			t.Run(string(status)+"/"+op, func(t *testing.T) {
				p := withStatus(t, status)
				before := p.State()

				err := fn(p)
				if ok[op] {
					assert.NoError(t, err)
					assertBalanced(t, p)
					return
				}
				assert.ErrorIs(t, err, apperr.InvalidTransition)
				assert.Equal(t, before, p.State())
				assert.Empty(t, p.Changes())
			})
		}
	}
}

func TestEventsCarryPatient(t *testing.T) {
	p := newPayment(t)
	require.NoError(t, p.PartialPay(won(1000), now))

	events := p.Changes()
	require.Len(t, events, 2)
	assert.Equal(t, EventPaymentCreated, events[0].EventType)
	assert.Equal(t, EventPaymentPartiallyPaid, events[1].EventType)
	assert.Equal(t, p.PatientID().String(), events[1].PatientID)

	var data PartiallyPaidData
	require.NoError(t, events[1].Decode(&data))
	assert.Equal(t, int64(9000), data.Remain.Amount())
}
