package order

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"canteen-system/internal/apperr"
	"canteen-system/internal/auth"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
	"canteen-system/internal/web"
)

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
	timeout time.Duration
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger, timeout time.Duration) *Handler {
	return &Handler{
		service: service,
		logger:  log,
		timeout: timeout,
	}
}

// Routes registers order endpoints on an authenticated router
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.PlaceOrder)
	r.Get("/orders", h.ListMyOrders)
	r.Get("/orders/{reference}", h.GetOrder)
	r.Get("/orders/{reference}/history", h.GetOrderHistory)
	r.Post("/orders/{reference}/approve", h.transition(h.service.Approve))
	r.Post("/orders/{reference}/complete", h.transition(h.service.Complete))
	r.Post("/orders/{reference}/reject", h.transitionWithNotes(h.service.Reject))
	r.Post("/orders/{reference}/cancel", h.transitionWithNotes(h.service.Cancel))
	r.Get("/outlets/{outletID}/orders", h.ListOutletOrders)
}

// PlaceOrder handles POST /orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, "order_failed", err)
		return
	}

	var req models.PlaceOrderRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.service.Place(ctx, p, &req)
	if err != nil {
		web.WriteError(w, r, h.logger, "order_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /orders/{reference}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, "order_lookup_failed", err)
		return
	}

	order, err := h.service.Get(r.Context(), p, chi.URLParam(r, "reference"))
	if err != nil {
		web.WriteError(w, r, h.logger, "order_lookup_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, order)
}

// GetOrderHistory handles GET /orders/{reference}/history
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, "history_lookup_failed", err)
		return
	}

	history, err := h.service.History(r.Context(), p, chi.URLParam(r, "reference"))
	if err != nil {
		web.WriteError(w, r, h.logger, "history_lookup_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, history)
}

// ListMyOrders handles GET /orders
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}

	status, limit, err := listParams(r)
	if err != nil {
		web.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}

	orders, err := h.service.ListMine(r.Context(), p, status, limit)
	if err != nil {
		web.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, orders)
}

// ListOutletOrders handles GET /outlets/{outletID}/orders
func (h *Handler) ListOutletOrders(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}

	outletID, err := web.UUIDParam(r, "outletID")
	if err != nil {
		web.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}

	status, limit, err := listParams(r)
	if err != nil {
		web.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}

	orders, err := h.service.ListOutlet(r.Context(), p, outletID, status, limit)
	if err != nil {
		web.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, orders)
}

type transitionFunc func(ctx context.Context, p models.Principal, reference string) (*models.Order, error)

type notedTransitionFunc func(ctx context.Context, p models.Principal, reference string, notes *string) (*models.Order, error)

type transitionRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return h.transitionWithNotes(func(ctx context.Context, p models.Principal, reference string, _ *string) (*models.Order, error) {
		return fn(ctx, p, reference)
	})
}

func (h *Handler) transitionWithNotes(fn notedTransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := auth.PrincipalFrom(r.Context())
		if err != nil {
			web.WriteError(w, r, h.logger, "transition_failed", err)
			return
		}

		var req transitionRequest
		if r.ContentLength != 0 {
			if err := web.DecodeJSON(r, &req); err != nil {
				web.WriteError(w, r, h.logger, "validation_failed", err)
				return
			}
		}
		if req.Notes != nil && len(*req.Notes) > models.MaxNotesLength {
			web.WriteError(w, r, h.logger, "validation_failed", apperr.InvalidInput("notes must not exceed %d characters", models.MaxNotesLength))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		order, err := fn(ctx, p, chi.URLParam(r, "reference"), req.Notes)
		if err != nil {
			web.WriteError(w, r, h.logger, "transition_failed", err)
			return
		}
		web.WriteJSON(w, http.StatusOK, order)
	}
}

func listParams(r *http.Request) (models.OrderStatus, int, error) {
	q := r.URL.Query()
	status := models.OrderStatus(q.Get("status"))

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return "", 0, apperr.InvalidInput("limit must be a positive integer")
		}
		limit = n
	}
	return status, limit, nil
}
