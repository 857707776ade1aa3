package episode

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/money"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/payment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/notification"
)

const entityPayment = "payment"

// CreatePayment opens the payment of a completed treatment
func (c *Coordinator) CreatePayment(ctx context.Context, treatmentID uuid.UUID, amt payment.Amounts) (*payment.Payment, error) {
	var out *payment.Payment
	err := c.execute(ctx, entityPayment, "create", func(ctx context.Context, tx Tx, _ *effects) error {
		p, err := c.initializePayment(ctx, tx, treatmentID, amt)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// CreatePaymentFromQuote prices a treatment by coverage and discount and
// opens its payment
func (c *Coordinator) CreatePaymentFromQuote(ctx context.Context, treatmentID uuid.UUID, gross money.Money, coverage payment.Coverage, discountRate decimal.Decimal) (*payment.Payment, payment.Quote, error) {
	var (
		out   *payment.Payment
		quote payment.Quote
	)
	err := c.execute(ctx, entityPayment, "create_from_quote", func(ctx context.Context, tx Tx, _ *effects) error {
		q, err := payment.QuoteFee(gross, coverage, discountRate)
		if err != nil {
			return err
		}
		p, err := c.initializePayment(ctx, tx, treatmentID, q.Amounts())
		if err != nil {
			return err
		}
		out, quote = p, q
		return nil
	})
	return out, quote, err
}

// GetPayment loads a payment
func (c *Coordinator) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var out *payment.Payment
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Payments().Get(ctx, id)
		return err
	})
	return out, err
}

// GetPaymentByTreatment returns NotFound when the treatment has none
func (c *Coordinator) GetPaymentByTreatment(ctx context.Context, treatmentID uuid.UUID) (*payment.Payment, error) {
	var out *payment.Payment
	err := c.read(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.Payments().FindByTreatment(ctx, treatmentID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.Newf(apperr.NotFound, "treatment %s has no payment", treatmentID)
		}
		out = p
		return nil
	})
	return out, err
}

// PartialPay collects part of the outstanding amount
func (c *Coordinator) PartialPay(ctx context.Context, id uuid.UUID, amount money.Money) (*payment.Payment, error) {
	return c.mutatePayment(ctx, id, "partial_pay", func(p *payment.Payment, _ *effects) error {
		return p.PartialPay(amount, c.now())
	})
}

// CompletePayment settles the full total
func (c *Coordinator) CompletePayment(ctx context.Context, id uuid.UUID, r payment.Receipt) (*payment.Payment, error) {
	return c.mutatePayment(ctx, id, "complete", func(p *payment.Payment, fx *effects) error {
		if err := p.Complete(r, c.now()); err != nil {
			return err
		}
		if pid := p.PatientID(); pid != nil {
			fx.notify(*pid, notification.TemplatePaymentCompleted, map[string]string{
				"payment_id":      p.ID().String(),
				"amount":          p.Total().String(),
				"method":          string(p.Method()),
				"approval_number": p.State().ApprovalNumber,
			})
		}
		return nil
	})
}

// CancelPayment voids a payment
func (c *Coordinator) CancelPayment(ctx context.Context, id uuid.UUID, reason string) (*payment.Payment, error) {
	return c.mutatePayment(ctx, id, "cancel", func(p *payment.Payment, _ *effects) error {
		return p.Cancel(reason, c.now())
	})
}

// RefundPayment returns part of the collected amount. An empty method
// refunds through the original one.
func (c *Coordinator) RefundPayment(ctx context.Context, id uuid.UUID, amount money.Money, method payment.Method) (*payment.Payment, error) {
	return c.mutatePayment(ctx, id, "refund", func(p *payment.Payment, fx *effects) error {
		if err := p.Refund(amount, method, c.now()); err != nil {
			return err
		}
		if pid := p.PatientID(); pid != nil {
			fx.notify(*pid, notification.TemplatePaymentRefunded, map[string]string{
				"payment_id": p.ID().String(),
				"amount":     amount.String(),
				"method":     string(p.State().RefundMethod),
			})
		}
		return nil
	})
}

// UpdatePaymentMethod changes the recorded method
func (c *Coordinator) UpdatePaymentMethod(ctx context.Context, id uuid.UUID, method payment.Method) (*payment.Payment, error) {
	return c.mutatePayment(ctx, id, "update_method", func(p *payment.Payment, _ *effects) error {
		return p.UpdatePaymentMethod(method, c.now())
	})
}

func (c *Coordinator) mutatePayment(ctx context.Context, id uuid.UUID, op string, fn func(p *payment.Payment, fx *effects) error) (*payment.Payment, error) {
	var out *payment.Payment
	err := c.execute(ctx, entityPayment, op, func(ctx context.Context, tx Tx, fx *effects) error {
		p, err := tx.Payments().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(p, fx); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (c *Coordinator) initializePayment(ctx context.Context, tx Tx, treatmentID uuid.UUID, amt payment.Amounts) (*payment.Payment, error) {
	if treatmentID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "treatment is required")
	}
	t, err := tx.Treatments().Get(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	if t.Status() != treatment.StatusCompleted {
		return nil, apperr.Newf(apperr.InvalidState, "treatment %s is %s, not COMPLETED", t.ID(), t.Status())
	}
	existing, err := tx.Payments().FindByTreatment(ctx, t.ID())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Newf(apperr.InvalidState, "treatment %s already has payment %s", t.ID(), existing.ID())
	}
	patientID := t.PatientID()
	p, err := payment.Initialize(c.newID(), t.ID(), &patientID, amt, c.now())
	if err != nil {
		return nil, err
	}
	if err := tx.Payments().Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
