package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

// TreatmentHandler handles treatment endpoints
type TreatmentHandler struct {
	episodes *episode.Coordinator
	logger   *zap.Logger
}

// NewTreatmentHandler creates a new handler
func NewTreatmentHandler(c *episode.Coordinator, logger *zap.Logger) *TreatmentHandler {
	return &TreatmentHandler{episodes: c, logger: logger}
}

// Routes returns the handler routes
func (h *TreatmentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.ListByPatient)
	r.Post("/from-check-in/{checkInID}", h.CreateFromCheckIn)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Post("/{id}/start", h.Start)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

// CreateTreatmentRequest opens a treatment
type CreateTreatmentRequest struct {
	CheckInID    *uuid.UUID `json:"check_in_id,omitempty"`
	PatientID    uuid.UUID  `json:"patient_id"`
	StaffID      uuid.UUID  `json:"staff_id"`
	Category     string     `json:"category"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	Note         string     `json:"note,omitempty"`
}

// UpdateTreatmentRequest edits an open treatment. Absent fields are kept.
type UpdateTreatmentRequest struct {
	Note         *string    `json:"note,omitempty"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	StaffID      *uuid.UUID `json:"staff_id,omitempty"`
}

// CompleteTreatmentRequest closes a treatment with an optional note
type CompleteTreatmentRequest struct {
	Note string `json:"note,omitempty"`
}

// TreatmentResponse is a treatment with its category detail
type TreatmentResponse struct {
	treatment.State
	Detail treatment.Detail `json:"detail"`
}

func treatmentView(t *treatment.Treatment) TreatmentResponse {
	return TreatmentResponse{State: t.State(), Detail: t.Detail()}
}

// Create handles POST /treatments
func (h *TreatmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTreatmentRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.episodes.CreateTreatment(r.Context(), episode.NewTreatment{
		CheckInID:    req.CheckInID,
		PatientID:    req.PatientID,
		StaffID:      req.StaffID,
		Category:     req.Category,
		DepartmentID: req.DepartmentID,
		Note:         req.Note,
	})
	h.respond(w, r, http.StatusCreated, t, err)
}

// CreateFromCheckIn handles POST /treatments/from-check-in/{checkInID}
func (h *TreatmentHandler) CreateFromCheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "checkInID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.episodes.CreateTreatmentFromCheckIn(r.Context(), id)
	h.respond(w, r, http.StatusCreated, t, err)
}

// Get handles GET /treatments/{id}
func (h *TreatmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.episodes.GetTreatment(r.Context(), id)
	h.respond(w, r, http.StatusOK, t, err)
}

// ListByPatient handles GET /treatments?patient_id=
func (h *TreatmentHandler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := queryID(r, "patient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.episodes.ListTreatmentsByPatient(r.Context(), patientID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]TreatmentResponse, 0, len(list))
	for _, t := range list {
		out = append(out, treatmentView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// Update handles PATCH /treatments/{id}
func (h *TreatmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req UpdateTreatmentRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.episodes.UpdateTreatment(r.Context(), id, treatment.Edit{
		Note:         req.Note,
		DepartmentID: req.DepartmentID,
		StaffID:      req.StaffID,
	})
	h.respond(w, r, http.StatusOK, t, err)
}

// Start handles POST /treatments/{id}/start
func (h *TreatmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.episodes.StartTreatment(r.Context(), id)
	h.respond(w, r, http.StatusOK, t, err)
}

// Complete handles POST /treatments/{id}/complete. It may also complete
// the reservation behind the treatment's check-in.
func (h *TreatmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req CompleteTreatmentRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.episodes.CompleteTreatment(r.Context(), id, req.Note)
	h.respond(w, r, http.StatusOK, t, err)
}

// Cancel handles POST /treatments/{id}/cancel
func (h *TreatmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req reasonRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.episodes.CancelTreatment(r.Context(), id, req.Reason)
	h.respond(w, r, http.StatusOK, t, err)
}

func (h *TreatmentHandler) respond(w http.ResponseWriter, r *http.Request, status int, t *treatment.Treatment, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, treatmentView(t))
}
