package prescription

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists prescriptions and their items inside a unit of work
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Aggregate, error)
	Insert(ctx context.Context, a *Aggregate) error
	// Update rewrites the header and the full item list
	Update(ctx context.Context, a *Aggregate) error
	// FindByTreatment returns nil, nil when the treatment has no prescription
	FindByTreatment(ctx context.Context, treatmentID uuid.UUID) (*Aggregate, error)
}
