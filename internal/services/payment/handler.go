package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"canteen-system/internal/auth"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
	"canteen-system/internal/web"
)

// Handler handles HTTP requests for gateway payments
type Handler struct {
	service *Service
	logger  *logger.Logger
	timeout time.Duration
}

// NewHandler creates a new payment handler
func NewHandler(service *Service, log *logger.Logger, timeout time.Duration) *Handler {
	return &Handler{service: service, logger: log, timeout: timeout}
}

// Routes registers endpoints called by signed-in users
func (h *Handler) Routes(r chi.Router) {
	r.Post("/payments/checkout", h.Checkout)
}

// GatewayRoutes registers the provider's webhooks. They carry no bearer token; callbacks are verified by signature.
func (h *Handler) GatewayRoutes(r chi.Router) {
	r.Post("/payments/callback", h.Callback)
	r.Post("/payments/failure", h.Failure)
}

// Checkout handles POST /payments/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, "checkout_failed", err)
		return
	}

	var req models.CheckoutRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.service.StartCheckout(ctx, p, &req)
	if err != nil {
		web.WriteError(w, r, h.logger, "checkout_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, resp)
}

// Callback handles POST /payments/callback
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	var cb models.PaymentCallback
	if err := web.DecodeJSON(r, &cb); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.service.HandleCallback(ctx, &cb)
	if err != nil {
		web.WriteError(w, r, h.logger, "settlement_failed", err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	web.WriteJSON(w, status, result)
}

// Failure handles POST /payments/failure
func (h *Handler) Failure(w http.ResponseWriter, r *http.Request) {
	var f models.PaymentFailure
	if err := web.DecodeJSON(r, &f); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	tx, err := h.service.HandleFailure(r.Context(), &f)
	if err != nil {
		web.WriteError(w, r, h.logger, "payment_failure_report_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, tx)
}
