package checkin

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestNewFromReservation(t *testing.T) {
	resID := uuid.New()
	scheduled := now.Add(2 * time.Hour)

	c, err := NewFromReservation(uuid.New(), resID, uuid.New(), nil, scheduled, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, c.Status())
	assert.Equal(t, scheduled, c.CheckInAt())
	require.NotNil(t, c.ReservationID())
	assert.Equal(t, resID, *c.ReservationID())
	assert.Equal(t, FromReservationComment, c.State().Comment)
	require.Len(t, c.Changes(), 1)
	assert.Equal(t, EventCheckInCreated, c.Changes()[0].EventType)
}

func TestCompleteAndCancel(t *testing.T) {
	c, err := New(uuid.New(), uuid.New(), nil, "walk-in", now)
	require.NoError(t, err)
	c.MarkPersisted()

	require.NoError(t, c.Complete(now))
	assert.Equal(t, StatusCompleted, c.Status())

	assert.ErrorIs(t, c.Complete(now), apperr.InvalidTransition)
	assert.ErrorIs(t, c.Cancel(now), apperr.InvalidTransition)

	other, err := New(uuid.New(), uuid.New(), nil, "", now)
	require.NoError(t, err)
	require.NoError(t, other.Cancel(now))
	assert.Equal(t, StatusCancelled, other.Status())
	assert.ErrorIs(t, other.Complete(now), apperr.InvalidTransition)
}

func TestNewRequiresPatient(t *testing.T) {
	_, err := New(uuid.New(), uuid.Nil, nil, "", now)
	assert.ErrorIs(t, err, apperr.Validation)
}
