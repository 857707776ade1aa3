package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists reservations inside a unit of work.
// Update must fail with apperr.InvalidTransition when the stored version
// no longer matches, and Get with apperr.NotFound for unknown ids.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)
	Insert(ctx context.Context, r *Reservation) error
	Update(ctx context.Context, r *Reservation) error
	// ExistsOpenAt reports whether the patient holds an open reservation at exactly at,
	// ignoring excludeID.
	ExistsOpenAt(ctx context.Context, patientID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error)
	// ListOpenByPatientBetween returns open reservations with from <= scheduled_at < to,
	// earliest first.
	ListOpenByPatientBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Reservation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Reservation, error)
}
