package episode

import (
	"context"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/payment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/prescription"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
)

// Tx is one unit of work. Repositories obtained from it share the
// transaction; nothing is visible to other units until it commits.
type Tx interface {
	Reservations() reservation.Repository
	CheckIns() checkin.Repository
	Treatments() treatment.Repository
	Prescriptions() prescription.Repository
	Payments() payment.Repository

	// Savepoint runs fn in a nested unit. If fn fails only its writes are
	// undone and the outer unit stays usable.
	Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store opens units of work. WithinTx commits when fn returns nil and rolls
// back otherwise; the error from fn is returned unchanged.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
