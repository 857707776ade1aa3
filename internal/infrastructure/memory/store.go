// Package memory is an in-process episode store. Units of work are
// serialised; each works on a private copy of the state that replaces the
// shared one on commit. Recorded events are handed to a publisher after
// commit.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/payment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/prescription"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

type treatmentRow struct {
	state  treatment.State
	detail treatment.Detail
}

type state struct {
	reservations  map[uuid.UUID]reservation.State
	checkIns      map[uuid.UUID]checkin.State
	treatments    map[uuid.UUID]treatmentRow
	prescriptions map[uuid.UUID]prescription.State
	payments      map[uuid.UUID]payment.State
}

func newState() state {
	return state{
		reservations:  map[uuid.UUID]reservation.State{},
		checkIns:      map[uuid.UUID]checkin.State{},
		treatments:    map[uuid.UUID]treatmentRow{},
		prescriptions: map[uuid.UUID]prescription.State{},
		payments:      map[uuid.UUID]payment.State{},
	}
}

func (s state) clone() state {
	cp := state{
		reservations:  make(map[uuid.UUID]reservation.State, len(s.reservations)),
		checkIns:      make(map[uuid.UUID]checkin.State, len(s.checkIns)),
		treatments:    make(map[uuid.UUID]treatmentRow, len(s.treatments)),
		prescriptions: make(map[uuid.UUID]prescription.State, len(s.prescriptions)),
		payments:      make(map[uuid.UUID]payment.State, len(s.payments)),
	}
	for k, v := range s.reservations {
		cp.reservations[k] = v
	}
	for k, v := range s.checkIns {
		cp.checkIns[k] = v
	}
	for k, v := range s.treatments {
		cp.treatments[k] = v
	}
	for k, v := range s.prescriptions {
		cp.prescriptions[k] = clonePrescription(v)
	}
	for k, v := range s.payments {
		cp.payments[k] = v
	}
	return cp
}

func clonePrescription(p prescription.State) prescription.State {
	p.Items = append([]prescription.Item(nil), p.Items...)
	return p
}

// Store implements episode.Store in memory
type Store struct {
	mu        sync.Mutex
	state     state
	publisher event.Publisher
	logger    *zap.Logger
}

// NewStore creates an empty store. publisher may be nil.
func NewStore(publisher event.Publisher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{state: newState(), publisher: publisher, logger: logger}
}

var _ episode.Store = (*Store)(nil)

// WithinTx runs fn against a private copy of the state and commits it when
// fn succeeds
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx episode.Tx) error) error {
	events, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, tx episode.Tx) error) ([]*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx := &unit{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return nil, err
	}
	s.state = tx.state
	return tx.events, nil
}

func (s *Store) publish(ctx context.Context, events []*event.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("event publish failed",
				zap.String("event_id", e.ID),
				zap.String("event_type", string(e.EventType)),
				zap.Error(err))
		}
	}
}

// unit is one unit of work
type unit struct {
	state  state
	events []*event.Event
}

func (u *unit) Reservations() reservation.Repository   { return reservationRepo{u} }
func (u *unit) CheckIns() checkin.Repository           { return checkInRepo{u} }
func (u *unit) Treatments() treatment.Repository       { return treatmentRepo{u} }
func (u *unit) Prescriptions() prescription.Repository { return prescriptionRepo{u} }
func (u *unit) Payments() payment.Repository           { return paymentRepo{u} }

// Savepoint restores the state and drops the events recorded by fn when it
// fails
func (u *unit) Savepoint(ctx context.Context, fn func(ctx context.Context, tx episode.Tx) error) error {
	snapshot := u.state.clone()
	mark := len(u.events)
	if err := fn(ctx, u); err != nil {
		u.state = snapshot
		u.events = u.events[:mark]
		return err
	}
	return nil
}

// aggregate is what every repository write needs from a domain object
type aggregate interface {
	Version() int
	Changes() []*event.Event
	MarkPersisted()
}

func (u *unit) persisted(a aggregate) {
	u.events = append(u.events, a.Changes()...)
	a.MarkPersisted()
}

func notFound(kind string, id uuid.UUID) error {
	return apperr.Newf(apperr.NotFound, "%s %s not found", kind, id)
}

func conflict(kind string, id uuid.UUID) error {
	return apperr.Newf(apperr.InvalidTransition, "%s %s was modified concurrently", kind, id)
}
