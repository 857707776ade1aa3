package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

// CheckInHandler handles check-in endpoints
type CheckInHandler struct {
	episodes *episode.Coordinator
	logger   *zap.Logger
}

// NewCheckInHandler creates a new handler
func NewCheckInHandler(c *episode.Coordinator, logger *zap.Logger) *CheckInHandler {
	return &CheckInHandler{episodes: c, logger: logger}
}

// Routes returns the handler routes
func (h *CheckInHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Post("/from-reservation/{reservationID}", h.CreateFromReservation)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

// CreateCheckInRequest registers a walk-in
type CreateCheckInRequest struct {
	PatientID uuid.UUID  `json:"patient_id"`
	StaffID   *uuid.UUID `json:"staff_id,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

// Create handles POST /check-ins
func (h *CheckInHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckInRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ci, err := h.episodes.CreateCheckIn(r.Context(), episode.NewCheckIn{
		PatientID: req.PatientID,
		StaffID:   req.StaffID,
		Comment:   req.Comment,
	})
	h.respond(w, r, http.StatusCreated, ci, err)
}

// CreateFromReservation handles POST /check-ins/from-reservation/{reservationID}
func (h *CheckInHandler) CreateFromReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "reservationID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ci, err := h.episodes.CreateCheckInFromReservation(r.Context(), id)
	h.respond(w, r, http.StatusCreated, ci, err)
}

// Get handles GET /check-ins/{id}
func (h *CheckInHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, http.StatusOK, h.episodes.GetCheckIn)
}

// Complete handles POST /check-ins/{id}/complete
func (h *CheckInHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, http.StatusOK, h.episodes.CompleteCheckIn)
}

// Cancel handles POST /check-ins/{id}/cancel
func (h *CheckInHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, http.StatusOK, h.episodes.CancelCheckIn)
}

func (h *CheckInHandler) byID(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context, id uuid.UUID) (*checkin.CheckIn, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ci, err := fn(r.Context(), id)
	h.respond(w, r, status, ci, err)
}

func (h *CheckInHandler) respond(w http.ResponseWriter, r *http.Request, status int, ci *checkin.CheckIn, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, ci.State())
}
