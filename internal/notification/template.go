package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

// Template ids sent by the coordinator
const (
	TemplateReservationRegistered = "reservation.registered"
	TemplateReservationUpdated    = "reservation.updated"
	TemplateReservationCancelled  = "reservation.cancelled"
	TemplateTreatmentCompleted    = "treatment.completed"
	TemplatePaymentCompleted      = "payment.completed"
	TemplatePaymentRefunded       = "payment.refunded"
)

// Template is a subject/body pair with {{key}} placeholders
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Engine renders registered templates
type Engine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewEngine returns an engine with the episode templates registered
func NewEngine() *Engine {
	e := &Engine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

var builtIn = []Template{
	{
		ID:      TemplateReservationRegistered,
		Subject: "Reservation confirmed for {{scheduled_at}}",
		Body:    "Dear {{patient_name}}, your visit is booked for {{scheduled_at}}. Reservation no. {{reservation_id}}.",
	},
	{
		ID:      TemplateReservationUpdated,
		Subject: "Reservation moved to {{scheduled_at}}",
		Body:    "Dear {{patient_name}}, your visit has been rescheduled to {{scheduled_at}}. Reason: {{reason}}.",
	},
	{
		ID:      TemplateReservationCancelled,
		Subject: "Reservation cancelled",
		Body:    "Dear {{patient_name}}, your reservation for {{scheduled_at}} was cancelled. Reason: {{reason}}.",
	},
	{
		ID:      TemplateTreatmentCompleted,
		Subject: "Your treatment is complete",
		Body:    "Dear {{patient_name}}, your {{category}} treatment on {{completed_at}} is complete. {{note}}",
	},
	{
		ID:      TemplatePaymentCompleted,
		Subject: "Payment received: {{amount}}",
		Body:    "Dear {{patient_name}}, we received {{amount}} by {{method}}. Approval no. {{approval_number}}.",
	},
	{
		ID:      TemplatePaymentRefunded,
		Subject: "Refund issued: {{amount}}",
		Body:    "Dear {{patient_name}}, {{amount}} has been refunded by {{method}}.",
	},
}

// Register adds or replaces a template
func (e *Engine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// IDs lists registered template ids in order
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.templates))
	for id := range e.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render substitutes data into a template. Unknown placeholders are left as-is.
func (e *Engine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", apperr.Newf(apperr.NotFound, "template %q not found", templateID)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, fmt.Sprintf("{{%s}}", k), v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
