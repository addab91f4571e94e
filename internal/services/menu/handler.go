package menu

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"canteen-system/internal/auth"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
	"canteen-system/internal/web"
)

// Handler handles HTTP requests for menus and outlets
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new menu handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// Routes registers menu endpoints on an authenticated router
func (h *Handler) Routes(r chi.Router) {
	r.Post("/outlets", h.CreateOutlet)
	r.Route("/outlets/{outletID}/menu", func(r chi.Router) {
		r.Get("/", h.ListMenu)
		r.Post("/", h.CreateItem)
		r.Put("/quantities", h.SetQuantities)
		r.Put("/{itemID}", h.UpdateItem)
		r.Delete("/{itemID}", h.DeleteItem)
	})
}

// ListMenu handles GET /outlets/{outletID}/menu
func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	outletID, err := web.UUIDParam(r, "outletID")
	if err != nil {
		web.WriteError(w, r, h.logger, "menu_list_failed", err)
		return
	}

	q := r.URL.Query()
	filter := models.MenuFilter{
		Category:     q.Get("category"),
		Availability: models.Availability(q.Get("availability")),
	}

	items, err := h.service.List(r.Context(), outletID, filter)
	if err != nil {
		web.WriteError(w, r, h.logger, "menu_list_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, items)
}

// CreateItem handles POST /outlets/{outletID}/menu
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	p, outletID, ok := h.operatorRequest(w, r, "menu_create_failed")
	if !ok {
		return
	}

	var in models.MenuItemInput
	if err := web.DecodeJSON(r, &in); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	item, err := h.service.Create(r.Context(), p, outletID, &in)
	if err != nil {
		web.WriteError(w, r, h.logger, "menu_create_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PUT /outlets/{outletID}/menu/{itemID}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	p, outletID, ok := h.operatorRequest(w, r, "menu_update_failed")
	if !ok {
		return
	}
	itemID, err := web.UUIDParam(r, "itemID")
	if err != nil {
		web.WriteError(w, r, h.logger, "menu_update_failed", err)
		return
	}

	var in models.MenuItemInput
	if err := web.DecodeJSON(r, &in); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	item, err := h.service.Update(r.Context(), p, outletID, itemID, &in)
	if err != nil {
		web.WriteError(w, r, h.logger, "menu_update_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, item)
}

type quantitiesRequest struct {
	Updates []models.QuantityUpdate `json:"updates"`
}

// SetQuantities handles PUT /outlets/{outletID}/menu/quantities
func (h *Handler) SetQuantities(w http.ResponseWriter, r *http.Request) {
	p, outletID, ok := h.operatorRequest(w, r, "quantity_update_failed")
	if !ok {
		return
	}

	var req quantitiesRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	if err := h.service.SetQuantities(r.Context(), p, outletID, req.Updates); err != nil {
		web.WriteError(w, r, h.logger, "quantity_update_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteItem handles DELETE /outlets/{outletID}/menu/{itemID}
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	p, outletID, ok := h.operatorRequest(w, r, "menu_delete_failed")
	if !ok {
		return
	}
	itemID, err := web.UUIDParam(r, "itemID")
	if err != nil {
		web.WriteError(w, r, h.logger, "menu_delete_failed", err)
		return
	}

	if err := h.service.Delete(r.Context(), p, outletID, itemID); err != nil {
		web.WriteError(w, r, h.logger, "menu_delete_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateOutlet handles POST /outlets
func (h *Handler) CreateOutlet(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, "outlet_create_failed", err)
		return
	}

	var req OutletRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	outlet, err := h.service.CreateOutlet(r.Context(), p, &req)
	if err != nil {
		web.WriteError(w, r, h.logger, "outlet_create_failed", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, outlet)
}

func (h *Handler) operatorRequest(w http.ResponseWriter, r *http.Request, action string) (models.Principal, uuid.UUID, bool) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		web.WriteError(w, r, h.logger, action, err)
		return models.Principal{}, uuid.Nil, false
	}
	outletID, err := web.UUIDParam(r, "outletID")
	if err != nil {
		web.WriteError(w, r, h.logger, action, err)
		return models.Principal{}, uuid.Nil, false
	}
	return p, outletID, true
}
