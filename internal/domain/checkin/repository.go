package checkin

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists check-ins inside a unit of work
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*CheckIn, error)
	Insert(ctx context.Context, c *CheckIn) error
	Update(ctx context.Context, c *CheckIn) error
	// FindByPatientBetween returns the patient's non-cancelled check-ins with
	// from <= check_in_at < to, earliest first.
	FindByPatientBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*CheckIn, error)
}
