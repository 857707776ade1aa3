package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersByLabel(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTransition("payment", "complete", "ok")
	m.ObserveTransition("payment", "complete", "ok")
	m.ObserveTransition("payment", "complete", "invalid_transition")
	m.ObserveOrchestration("auto_create_checkin", "created")
	m.ObserveNotification("payment.completed", "skipped")
	m.ObserveOutbox("payment.events", "published")
	m.SetOutboxPending(7)
	m.ObserveConsumed("checkin.events", "handled")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("payment", "complete", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("payment", "complete", "invalid_transition")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orchestrations.WithLabelValues("auto_create_checkin", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("payment.completed", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEntries.WithLabelValues("payment.events", "published")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.OutboxPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesConsumed.WithLabelValues("checkin.events", "handled")))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRequest("/api/v1/payments/{id}", "GET", 200, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `http_request_duration_seconds_count{method="GET",route="/api/v1/payments/{id}",status="200"} 1`), body)
}
