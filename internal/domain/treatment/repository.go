package treatment

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists treatments inside a unit of work.
// Insert writes the treatment and its detail record together; if either
// write fails the unit of work must be rolled back.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Treatment, error)
	Insert(ctx context.Context, t *Treatment) error
	Update(ctx context.Context, t *Treatment) error
	// FindByCheckIn returns nil, nil when the check-in has no treatment
	FindByCheckIn(ctx context.Context, checkInID uuid.UUID) (*Treatment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error)
}
