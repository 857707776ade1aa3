package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists payments inside a unit of work
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Payment, error)
	Insert(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	// FindByTreatment returns nil, nil when the treatment has no payment
	FindByTreatment(ctx context.Context, treatmentID uuid.UUID) (*Payment, error)
}
