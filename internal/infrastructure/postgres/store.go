package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
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

// querier is satisfied by pgx.Tx, pgx.Conn and pgxpool.Pool
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs episode units of work as Postgres transactions. Every event
// an aggregate records is appended to domain_events and to the outbox in
// the same transaction as the row it describes.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a store on pool
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

var _ episode.Store = (*Store)(nil)

// WithinTx commits when fn returns nil and rolls back otherwise
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx episode.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &unit{tx: tx})
	})
}

type unit struct {
	tx pgx.Tx
}

func (u *unit) Reservations() reservation.Repository   { return reservationRepo{u.tx} }
func (u *unit) CheckIns() checkin.Repository           { return checkInRepo{u.tx} }
func (u *unit) Treatments() treatment.Repository       { return treatmentRepo{u.tx} }
func (u *unit) Prescriptions() prescription.Repository { return prescriptionRepo{u.tx} }
func (u *unit) Payments() payment.Repository           { return paymentRepo{u.tx} }

// Savepoint runs fn in a nested transaction backed by SAVEPOINT
func (u *unit) Savepoint(ctx context.Context, fn func(ctx context.Context, tx episode.Tx) error) error {
	return pgx.BeginFunc(ctx, u.tx, func(sp pgx.Tx) error {
		return fn(ctx, &unit{tx: sp})
	})
}

// aggregate is what every repository write needs from a domain object
type aggregate interface {
	Version() int
	Changes() []*event.Event
	MarkPersisted()
}

// persist appends the aggregate's pending events to the event log and the
// outbox, then advances its version
func persist(ctx context.Context, q querier, a aggregate) error {
	for _, e := range a.Changes() {
		if err := appendEvent(ctx, q, e); err != nil {
			return err
		}
		entry, err := NewOutboxEntry(e)
		if err != nil {
			return err
		}
		if err := WriteEntry(ctx, q, entry); err != nil {
			return err
		}
	}
	a.MarkPersisted()
	return nil
}

func appendEvent(ctx context.Context, q querier, e *event.Event) error {
	query := `
		INSERT INTO domain_events (id, aggregate_id, aggregate_type, event_type, event_data,
		                           version, patient_id, correlation_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.Exec(ctx, query,
		e.ID, e.AggregateID, e.AggregateType, string(e.EventType), json.RawMessage(e.EventData),
		e.Version, nullString(e.PatientID), nullString(e.CorrelationID), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", e.EventType, err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func notFound(kind string, id uuid.UUID) error {
	return apperr.Newf(apperr.NotFound, "%s %s not found", kind, id)
}

func conflict(kind string, id uuid.UUID) error {
	return apperr.Newf(apperr.InvalidTransition, "%s %s was modified concurrently", kind, id)
}

// checkUpdated turns a zero-row versioned update into NotFound or a
// concurrency conflict
func checkUpdated(ctx context.Context, q querier, tag pgconn.CommandTag, table, kind string, id uuid.UUID) error {
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s %s: %w", kind, id, err)
	}
	if !exists {
		return notFound(kind, id)
	}
	return conflict(kind, id)
}

const (
	codeUniqueViolation = "23505"

	openSlotIndex         = "uq_reservations_open_slot"
	checkInPerReservation = "uq_check_ins_reservation"
)

// uniqueViolation reports whether err breaks the named unique index
func uniqueViolation(err error, index string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == index
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
