package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/api/middleware"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/prescription"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	episodes *episode.Coordinator
	logger   *zap.Logger
}

// NewPrescriptionHandler creates a new handler
func NewPrescriptionHandler(c *episode.Coordinator, logger *zap.Logger) *PrescriptionHandler {
	return &PrescriptionHandler{episodes: c, logger: logger}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/by-treatment/{treatmentID}", h.GetByTreatment)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/items", h.AddItem)
	r.Patch("/{id}/items/{itemID}", h.UpdateItem)
	r.Delete("/{id}/items/{itemID}", h.RemoveItem)
	r.Post("/{id}/prescribe", h.Prescribe)
	r.Post("/{id}/dispense", h.Dispense)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

// CreatePrescriptionRequest is the request body for creating a prescription
type CreatePrescriptionRequest struct {
	TreatmentID uuid.UUID               `json:"treatment_id"`
	PatientID   uuid.UUID               `json:"patient_id"`
	StaffID     uuid.UUID               `json:"staff_id"`
	Type        string                  `json:"type"`
	Memo        string                  `json:"memo,omitempty"`
	Items       []prescription.ItemSpec `json:"items"`
}

// UpdatePrescriptionRequest replaces the memo and, when present, the items
type UpdatePrescriptionRequest struct {
	Memo  string                  `json:"memo"`
	Items []prescription.ItemSpec `json:"items,omitempty"`
}

// Create handles POST /prescriptions
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePrescriptionRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	a, err := h.episodes.CreatePrescription(ctx, episode.NewPrescription{
		TreatmentID: req.TreatmentID,
		PatientID:   req.PatientID,
		StaffID:     req.StaffID,
		Type:        req.Type,
		Memo:        req.Memo,
		Items:       req.Items,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("prescription_id", a.ID().String()))
	h.logger.Info("prescription created",
		zap.String("id", a.ID().String()),
		zap.String("treatment_id", a.TreatmentID().String()),
		zap.Int("items", len(a.Items())),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)
	writeJSON(w, http.StatusCreated, a.State())
}

// Get handles GET /prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.GetPrescription(r.Context(), id)
	h.respond(w, r, a, err)
}

// GetByTreatment handles GET /prescriptions/by-treatment/{treatmentID}
func (h *PrescriptionHandler) GetByTreatment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "treatmentID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.GetPrescriptionByTreatment(r.Context(), id)
	h.respond(w, r, a, err)
}

// Update handles PUT /prescriptions/{id}
func (h *PrescriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req UpdatePrescriptionRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.UpdatePrescription(r.Context(), id, req.Memo, req.Items)
	h.respond(w, r, a, err)
}

// AddItem handles POST /prescriptions/{id}/items
func (h *PrescriptionHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var spec prescription.ItemSpec
	if err := decode(r, &spec, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.AddPrescriptionItem(r.Context(), id, spec)
	h.respond(w, r, a, err)
}

// UpdateItem handles PATCH /prescriptions/{id}/items/{itemID}
func (h *PrescriptionHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var u prescription.ItemUpdate
	if err := decode(r, &u, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.UpdatePrescriptionItem(r.Context(), id, itemID, u)
	h.respond(w, r, a, err)
}

// RemoveItem handles DELETE /prescriptions/{id}/items/{itemID}
func (h *PrescriptionHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.RemovePrescriptionItem(r.Context(), id, itemID)
	h.respond(w, r, a, err)
}

// Prescribe handles POST /prescriptions/{id}/prescribe
func (h *PrescriptionHandler) Prescribe(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.Prescribe(r.Context(), id)
	h.respond(w, r, a, err)
}

// Dispense handles POST /prescriptions/{id}/dispense
func (h *PrescriptionHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.episodes.DispensePrescription(r.Context(), id)
	h.respond(w, r, a, err)
}

// Cancel handles POST /prescriptions/{id}/cancel
func (h *PrescriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
	a, err := h.episodes.CancelPrescription(r.Context(), id, req.Reason)
	h.respond(w, r, a, err)
}

func itemPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return id, itemID, nil
}

func (h *PrescriptionHandler) respond(w http.ResponseWriter, r *http.Request, a *prescription.Aggregate, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a.State())
}
