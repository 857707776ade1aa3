package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/money"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/payment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	episodes *episode.Coordinator
	logger   *zap.Logger
}

// NewPaymentHandler creates a new handler
func NewPaymentHandler(c *episode.Coordinator, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{episodes: c, logger: logger}
}

// Routes returns the handler routes
func (h *PaymentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Post("/quote", h.CreateFromQuote)
	r.Get("/by-treatment/{treatmentID}", h.GetByTreatment)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/partial", h.PartialPay)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/refund", h.Refund)
	r.Put("/{id}/method", h.UpdateMethod)
	return r
}

// CreatePaymentRequest opens a payment with explicit amounts. Every amount
// is required.
type CreatePaymentRequest struct {
	TreatmentID uuid.UUID    `json:"treatment_id"`
	Total       *money.Money `json:"total"`
	SelfPay     *money.Money `json:"self_pay"`
	Insurance   *money.Money `json:"insurance"`
}

func (req CreatePaymentRequest) amounts() (payment.Amounts, error) {
	total, err := required("total", req.Total)
	if err != nil {
		return payment.Amounts{}, err
	}
	selfPay, err := required("self_pay", req.SelfPay)
	if err != nil {
		return payment.Amounts{}, err
	}
	insurance, err := required("insurance", req.Insurance)
	if err != nil {
		return payment.Amounts{}, err
	}
	return payment.Amounts{Total: total, SelfPay: selfPay, Insurance: insurance}, nil
}

// required rejects an amount missing from the request body
func required(field string, m *money.Money) (money.Money, error) {
	if m == nil {
		return money.Money{}, apperr.Newf(apperr.InvalidAmount, "%s is required", field)
	}
	return *m, nil
}

// QuoteRequest opens a payment priced by coverage
type QuoteRequest struct {
	TreatmentID  uuid.UUID       `json:"treatment_id"`
	Gross        *money.Money    `json:"gross"`
	Coverage     string          `json:"coverage"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
}

// QuoteResponse returns the payment and how it was priced
type QuoteResponse struct {
	Payment payment.State `json:"payment"`
	Quote   payment.Quote `json:"quote"`
}

// AmountRequest carries an amount and, for refunds, a method
type AmountRequest struct {
	Amount *money.Money `json:"amount"`
	Method string       `json:"method,omitempty"`
}

// CompletePaymentRequest settles a payment
type CompletePaymentRequest struct {
	Method         string `json:"method"`
	ApprovalNumber string `json:"approval_number,omitempty"`
	CardCompany    string `json:"card_company,omitempty"`
}

// MethodRequest changes the recorded method
type MethodRequest struct {
	Method string `json:"method"`
}

// Create handles POST /payments
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	amt, err := req.amounts()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.episodes.CreatePayment(r.Context(), req.TreatmentID, amt)
	h.respond(w, r, http.StatusCreated, p, err)
}

// CreateFromQuote handles POST /payments/quote
func (h *PaymentHandler) CreateFromQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	gross, err := required("gross", req.Gross)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	coverage, err := payment.ParseCoverage(req.Coverage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, q, err := h.episodes.CreatePaymentFromQuote(r.Context(), req.TreatmentID, gross, coverage, req.DiscountRate)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, QuoteResponse{Payment: p.State(), Quote: q})
}

// Get handles GET /payments/{id}
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.episodes.GetPayment(r.Context(), id)
	h.respond(w, r, http.StatusOK, p, err)
}

// GetByTreatment handles GET /payments/by-treatment/{treatmentID}
func (h *PaymentHandler) GetByTreatment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "treatmentID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.episodes.GetPaymentByTreatment(r.Context(), id)
	h.respond(w, r, http.StatusOK, p, err)
}

// PartialPay handles POST /payments/{id}/partial
func (h *PaymentHandler) PartialPay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req AmountRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	amount, err := required("amount", req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.episodes.PartialPay(r.Context(), id, amount)
	h.respond(w, r, http.StatusOK, p, err)
}

// Complete handles POST /payments/{id}/complete
func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req CompletePaymentRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.episodes.CompletePayment(r.Context(), id, payment.Receipt{
		Method:         payment.Method(req.Method),
		ApprovalNumber: req.ApprovalNumber,
		CardCompany:    req.CardCompany,
	})
	h.respond(w, r, http.StatusOK, p, err)
}

// Cancel handles POST /payments/{id}/cancel
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.episodes.CancelPayment(r.Context(), id, req.Reason)
	h.respond(w, r, http.StatusOK, p, err)
}

// Refund handles POST /payments/{id}/refund
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req AmountRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	amount, err := required("amount", req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.episodes.RefundPayment(r.Context(), id, amount, payment.Method(req.Method))
	h.respond(w, r, http.StatusOK, p, err)
}

// UpdateMethod handles PUT /payments/{id}/method
func (h *PaymentHandler) UpdateMethod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req MethodRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Method == "" {
		writeError(w, r, h.logger, apperr.New(apperr.Validation, "method is required"))
		return
	}
	p, err := h.episodes.UpdatePaymentMethod(r.Context(), id, payment.Method(req.Method))
	h.respond(w, r, http.StatusOK, p, err)
}

func (h *PaymentHandler) respond(w http.ResponseWriter, r *http.Request, status int, p *payment.Payment, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, p.State())
}
