package handlers

import (
	"context"
	"net/http"
	"time"
)

// Check is one readiness check. Detail is reported even when it fails.
type Check struct {
	Name string
	Run  func(ctx context.Context) (detail any, err error)
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	service string
	checks  []Check
	timeout time.Duration
}

// NewHealthHandler creates a new handler
func NewHealthHandler(service string, checks ...Check) *HealthHandler {
	return &HealthHandler{service: service, checks: checks, timeout: 5 * time.Second}
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// Live handles GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": h.service})
}

// Ready handles GET /ready. Any failed check makes the service unready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]checkResult, len(h.checks))
	for _, c := range h.checks {
		detail, err := c.Run(ctx)
		res := checkResult{Status: "ok", Detail: detail}
		if err != nil {
			res.Status = "failed"
			res.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
		results[c.Name] = res
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "unready"
	}
	writeJSON(w, status, map[string]any{"status": overall, "service": h.service, "checks": results})
}
