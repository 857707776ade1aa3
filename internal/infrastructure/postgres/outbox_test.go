package postgres

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

func TestNewOutboxEntryCarriesEnvelope(t *testing.T) {
	aggregateID := uuid.New()
	patientID := uuid.New()
	e, err := event.New("Payment", aggregateID, "PaymentCompleted", map[string]string{"amount": "1000"})
	require.NoError(t, err)
	e.WithPatient(patientID)

	entry, err := NewOutboxEntry(e)
	require.NoError(t, err)
	assert.Equal(t, "payment.events", entry.KafkaTopic)
	assert.Equal(t, aggregateID.String(), entry.KafkaKey)
	assert.Equal(t, "PaymentCompleted", entry.EventType)

	var decoded event.Event
	require.NoError(t, json.Unmarshal(entry.Payload, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, patientID.String(), decoded.PatientID)
	assert.JSONEq(t, `{"amount":"1000"}`, string(decoded.EventData))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	require.NotNil(t, nullString("x"))
	assert.Equal(t, "x", *nullString("x"))
}
