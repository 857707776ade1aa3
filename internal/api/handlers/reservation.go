package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

// ReservationHandler handles reservation endpoints
type ReservationHandler struct {
	episodes *episode.Coordinator
	logger   *zap.Logger
}

// NewReservationHandler creates a new handler
func NewReservationHandler(c *episode.Coordinator, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{episodes: c, logger: logger}
}

// Routes returns the handler routes
func (h *ReservationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.ListByPatient)
	r.Get("/by-check-in/{checkInID}", h.GetByCheckIn)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/confirm", h.Confirm)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/reschedule", h.Reschedule)
	return r
}

// CreateReservationRequest is the request body for booking a visit
type CreateReservationRequest struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	StaffID     *uuid.UUID `json:"staff_id,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Memo        string     `json:"memo,omitempty"`
}

// RescheduleRequest moves a reservation
type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// Create handles POST /reservations
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.episodes.CreateReservation(r.Context(), episode.NewReservation{
		PatientID:   req.PatientID,
		StaffID:     req.StaffID,
		ScheduledAt: req.ScheduledAt,
		Memo:        req.Memo,
	})
	h.respond(w, r, http.StatusCreated, res, err)
}

// Get handles GET /reservations/{id}
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.episodes.GetReservation(r.Context(), id)
	h.respond(w, r, http.StatusOK, res, err)
}

// ListByPatient handles GET /reservations?patient_id=
func (h *ReservationHandler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := queryID(r, "patient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.episodes.ListReservationsByPatient(r.Context(), patientID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]reservation.State, 0, len(list))
	for _, res := range list {
		out = append(out, res.State())
	}
	writeJSON(w, http.StatusOK, out)
}

// GetByCheckIn handles GET /reservations/by-check-in/{checkInID}
func (h *ReservationHandler) GetByCheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "checkInID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.episodes.FindReservationByCheckIn(r.Context(), id)
	h.respond(w, r, http.StatusOK, res, err)
}

// Confirm handles POST /reservations/{id}/confirm
func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*reservation.Reservation, error) {
		return h.episodes.ConfirmReservation(r.Context(), id)
	})
}

// Complete handles POST /reservations/{id}/complete
func (h *ReservationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*reservation.Reservation, error) {
		return h.episodes.CompleteReservation(r.Context(), id)
	})
}

// Cancel handles POST /reservations/{id}/cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.transition(w, r, func(id uuid.UUID) (*reservation.Reservation, error) {
		return h.episodes.CancelReservation(r.Context(), id, req.Reason)
	})
}

// Reschedule handles POST /reservations/{id}/reschedule
func (h *ReservationHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.transition(w, r, func(id uuid.UUID) (*reservation.Reservation, error) {
		return h.episodes.RescheduleReservation(r.Context(), id, req.ScheduledAt, req.Reason)
	})
}

func (h *ReservationHandler) transition(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID) (*reservation.Reservation, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := fn(id)
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *ReservationHandler) respond(w http.ResponseWriter, r *http.Request, status int, res *reservation.Reservation, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, res.State())
}
