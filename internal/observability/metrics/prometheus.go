// Package metrics exposes episode outcomes to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	Transitions      *prometheus.CounterVec
	Orchestrations   *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	OutboxEntries    *prometheus.CounterVec
	OutboxPending    prometheus.Gauge
	MessagesConsumed *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "episode_transitions_total",
			Help: "Episode operations by entity, operation and outcome",
		}, []string{"entity", "op", "outcome"}),
		Orchestrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "episode_orchestrations_total",
			Help: "Cross-entity rule runs by rule and outcome",
		}, []string{"rule", "outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "episode_notifications_total",
			Help: "Patient notifications by template and outcome",
		}, []string{"template", "outcome"}),
		OutboxEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_entries_total",
			Help: "Outbox entries relayed by topic and outcome",
		}, []string{"topic", "outcome"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Consumed messages by topic and outcome",
		}, []string{"topic", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration by route, method and status",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.Transitions,
		m.Orchestrations,
		m.Notifications,
		m.OutboxEntries,
		m.OutboxPending,
		m.MessagesConsumed,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) ObserveTransition(entity, op, outcome string) {
	m.Transitions.WithLabelValues(entity, op, outcome).Inc()
}

func (m *Metrics) ObserveOrchestration(rule, outcome string) {
	m.Orchestrations.WithLabelValues(rule, outcome).Inc()
}

func (m *Metrics) ObserveNotification(template, outcome string) {
	m.Notifications.WithLabelValues(template, outcome).Inc()
}

func (m *Metrics) ObserveOutbox(topic, outcome string) {
	m.OutboxEntries.WithLabelValues(topic, outcome).Inc()
}

func (m *Metrics) SetOutboxPending(n int64) {
	m.OutboxPending.Set(float64(n))
}

func (m *Metrics) ObserveConsumed(topic, outcome string) {
	m.MessagesConsumed.WithLabelValues(topic, outcome).Inc()
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
