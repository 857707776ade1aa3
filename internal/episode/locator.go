package episode

import (
	"context"
	"time"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
)

// ReservationLocator finds the reservation a check-in fulfils. It only
// reads. A nil reservation with a nil error means no match.
type ReservationLocator interface {
	Locate(ctx context.Context, tx Tx, ci *checkin.CheckIn) (*reservation.Reservation, error)
}

// PatientDateLocator matches open reservations of the same patient on the
// check-in's calendar date and returns the earliest one
type PatientDateLocator struct {
	Location *time.Location
}

func (l PatientDateLocator) Locate(ctx context.Context, tx Tx, ci *checkin.CheckIn) (*reservation.Reservation, error) {
	loc := l.Location
	if loc == nil {
		loc = time.UTC
	}
	from, to := DayBounds(ci.CheckInAt(), loc)
	open, err := tx.Reservations().ListOpenByPatientBetween(ctx, ci.PatientID(), from, to)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	return open[0], nil
}

// LinkedLocator prefers the reservation a check-in was created from while
// it is open or already completed. A cancelled link and walk-ins fall back
// to another locator.
type LinkedLocator struct {
	Fallback ReservationLocator
}

func (l LinkedLocator) Locate(ctx context.Context, tx Tx, ci *checkin.CheckIn) (*reservation.Reservation, error) {
	if id := ci.ReservationID(); id != nil {
		r, err := tx.Reservations().Get(ctx, *id)
		switch {
		case err == nil:
			if r.IsOpen() || r.Status() == reservation.StatusCompleted {
				return r, nil
			}
		case !apperr.Is(err, apperr.NotFound):
			return nil, err
		}
	}
	if l.Fallback == nil {
		return nil, nil
	}
	return l.Fallback.Locate(ctx, tx, ci)
}
