package postgres

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
)

func TestUniqueViolation(t *testing.T) {
	slot := &pgconn.PgError{Code: "23505", ConstraintName: openSlotIndex}

	assert.True(t, uniqueViolation(slot, openSlotIndex))
	assert.True(t, uniqueViolation(fmt.Errorf("insert reservation: %w", slot), openSlotIndex))
	assert.False(t, uniqueViolation(slot, checkInPerReservation))
	assert.False(t, uniqueViolation(&pgconn.PgError{Code: "23503", ConstraintName: openSlotIndex}, openSlotIndex))
	assert.False(t, uniqueViolation(nil, openSlotIndex))
}

func TestSlotTakenIsDuplicateReservation(t *testing.T) {
	at := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	err := slotTaken(reservation.State{ID: uuid.New(), ScheduledAt: at})

	assert.ErrorIs(t, err, apperr.DuplicateReservation)
	assert.Contains(t, err.Error(), "2025-03-11T10:00:00Z")
}

func TestPatientDayKeyIgnoresZone(t *testing.T) {
	patient := uuid.New()
	seoul := time.FixedZone("KST", 9*60*60)
	from := time.Date(2025, 3, 11, 0, 0, 0, 0, seoul)

	assert.Equal(t, patientDayKey(patient, from), patientDayKey(patient, from.UTC()))
	assert.NotEqual(t, patientDayKey(patient, from), patientDayKey(uuid.New(), from))
	assert.NotEqual(t, patientDayKey(patient, from), patientDayKey(patient, from.AddDate(0, 0, 1)))
}
