package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/circuitbreaker"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/workerpool"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (c *captureSender) Deliver(_ context.Context, m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return c.err
}

func (c *captureSender) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

type capturePublisher struct {
	topic, key string
	value      []byte
}

func (c *capturePublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	c.topic, c.key, c.value = topic, key, value
	return nil
}

func TestEngineRendersBuiltIns(t *testing.T) {
	e := NewEngine()
	assert.Len(t, e.IDs(), 6)

	subject, body, err := e.Render(TemplatePaymentCompleted, map[string]string{
		"patient_name":    "Lee",
		"amount":          "12,000원",
		"method":          "CARD",
		"approval_number": "A-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment received: 12,000원", subject)
	assert.Contains(t, body, "we received 12,000원 by CARD")

	_, body, err = e.Render(TemplateReservationCancelled, map[string]string{"patient_name": "Lee"})
	require.NoError(t, err)
	assert.Contains(t, body, "{{reason}}")

	_, _, err = e.Render("missing", nil)
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestServiceSend(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(nil, sender, nil, nil)

	require.NoError(t, svc.Send(context.Background(), "lee@example.com", TemplateTreatmentCompleted,
		map[string]string{"patient_name": "Lee", "category": "OUTPATIENT"}))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lee@example.com", msgs[0].Recipient)
	assert.Equal(t, "Your treatment is complete", msgs[0].Subject)
	assert.NotEmpty(t, msgs[0].ID)

	assert.ErrorIs(t, svc.Send(context.Background(), "", TemplateTreatmentCompleted, nil), apperr.Validation)
}

func TestServiceTripsBreaker(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig("mail")
	cfg.ConsecutiveFailures = 1
	cfg.Timeout = time.Hour
	b, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)

	sender := &captureSender{err: errors.New("smtp down")}
	svc := NewService(nil, sender, b, nil)
	ctx := context.Background()

	assert.Error(t, svc.Send(ctx, "a@example.com", TemplatePaymentRefunded, nil))
	assert.ErrorIs(t, svc.Send(ctx, "a@example.com", TemplatePaymentRefunded, nil), circuitbreaker.ErrOpen)
	assert.Len(t, sender.messages(), 1)
}

func TestAsyncDelivers(t *testing.T) {
	sender := &captureSender{}
	cfg := workerpool.DefaultConfig("notifications")
	cfg.Workers = 1
	async, err := NewAsync(NewService(nil, sender, nil, nil), cfg, nil)
	require.NoError(t, err)

	require.NoError(t, async.Send(context.Background(), "a@example.com", TemplateReservationRegistered, nil))
	require.NoError(t, async.Send(context.Background(), "a@example.com", "unknown", nil))
	async.Stop()

	assert.Len(t, sender.messages(), 1)
	stats := async.Stats()
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Zero(t, stats.Retried)
}

func TestKafkaSender(t *testing.T) {
	pub := &capturePublisher{}
	k := NewKafkaSender(pub)
	require.NoError(t, k.Deliver(context.Background(), Message{ID: "m1", Recipient: "a@example.com", Subject: "hi"}))

	assert.Equal(t, OutboundTopic, pub.topic)
	assert.Equal(t, "a@example.com", pub.key)
	var m Message
	require.NoError(t, json.Unmarshal(pub.value, &m))
	assert.Equal(t, "m1", m.ID)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Send(context.Background(), "x", TemplatePaymentCompleted, nil))
	require.Len(t, r.Sent(), 1)
	assert.Equal(t, TemplatePaymentCompleted, r.Sent()[0].TemplateID)
}
