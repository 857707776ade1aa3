// Package event defines the domain event envelope recorded by every episode
// aggregate and shipped through the outbox to the event bus.
package event

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event
type Type string

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     Type            `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	PatientID     string          `json:"patient_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// New creates an event with a JSON encoded payload
func New(aggregateType string, aggregateID uuid.UUID, eventType Type, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID.String(),
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithPatient tags the event with the patient it concerns
func (e *Event) WithPatient(patientID uuid.UUID) *Event {
	e.PatientID = patientID.String()
	return e
}

// Topic is the bus topic the event is published to, e.g. "reservation.events"
func (e *Event) Topic() string {
	return TopicFor(e.AggregateType)
}

// TopicFor returns the topic carrying events of an aggregate type
func TopicFor(aggregateType string) string {
	return strings.ToLower(aggregateType) + ".events"
}

// Decode unmarshals the payload into v
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.EventData, v)
}

// Publisher delivers committed events to the bus
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, e *Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, e *Event) error { return f(ctx, e) }

// Recorder accumulates events raised by an aggregate until they are persisted
type Recorder struct {
	changes []*Event
}

// Record appends an event
func (r *Recorder) Record(e *Event) { r.changes = append(r.changes, e) }

// Changes returns uncommitted events
func (r *Recorder) Changes() []*Event { return r.changes }

// ClearChanges clears uncommitted events
func (r *Recorder) ClearChanges() { r.changes = nil }
