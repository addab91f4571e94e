package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canteen-system/internal/apperr"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

// Ledger takes and returns stock. Reserve is a single atomic check-and-decrement.
type Ledger interface {
	Reserve(ctx context.Context, outletID, itemID uuid.UUID, qty int) (models.OrderLine, error)
	Restore(ctx context.Context, outletID, itemID uuid.UUID, qty int) error
}

// Repository persists orders and their status log
type Repository interface {
	InsertOrder(ctx context.Context, order *models.Order, changedBy *uuid.UUID) error
	GetOrder(ctx context.Context, reference string) (*models.Order, error)
	TransitionOrder(ctx context.Context, t models.Transition) (*models.Order, error)
	ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error)
	History(ctx context.Context, reference string) ([]models.OrderStatusHistory, error)
}

// OutletDirectory reports whether an outlet takes orders
type OutletDirectory interface {
	IsActive(ctx context.Context, outletID uuid.UUID) (bool, error)
}

// Invalidator drops cached menu views of an outlet
type Invalidator interface {
	Invalidate(outletID uuid.UUID)
}

// Notifier announces inventory and status changes
type Notifier interface {
	InventoryChanged(ctx context.Context, msg *models.InventoryChangedMessage)
	OrderStatusChanged(ctx context.Context, msg *models.StatusUpdateMessage)
}

// Service places orders and drives them through their lifecycle
type Service struct {
	ledger   Ledger
	orders   Repository
	outlets  OutletDirectory
	cache    Invalidator
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a new order service
func NewService(ledger Ledger, orders Repository, outlets OutletDirectory, cache Invalidator, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		ledger:   ledger,
		orders:   orders,
		outlets:  outlets,
		cache:    cache,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
	}
}

// Place reserves stock for every line and records the order.
// Individual orders start approved on the qr channel, organization orders start pending.
func (s *Service) Place(ctx context.Context, p models.Principal, req *models.PlaceOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.place(ctx, p.UserID, req, models.InitialStatus(req.Settlement), models.ChannelFor(req.Settlement))
}

// PlacePaid records an order whose payment the gateway already settled
func (s *Service) PlacePaid(ctx context.Context, userID uuid.UUID, req *models.PlaceOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.place(ctx, userID, req, models.StatusCompleted, models.ChannelGateway)
}

func (s *Service) place(ctx context.Context, userID uuid.UUID, req *models.PlaceOrderRequest, status models.OrderStatus, channel models.PaymentChannel) (*models.Order, error) {
	requestID := logger.RequestIDFrom(ctx)

	active, err := s.outlets.IsActive(ctx, req.OutletID)
	if err != nil {
		return nil, fmt.Errorf("check outlet: %w", err)
	}
	if !active {
		return nil, apperr.NotFound("outlet %s not found", req.OutletID)
	}

	lines, err := s.reserve(ctx, req.OutletID, req.Lines)
	// intermediate quantities may have been read even when the reservation rolled back
	s.cache.Invalidate(req.OutletID)
	if err != nil {
		s.logger.Debug("reservation_failed", "Order reservation rolled back", requestID, map[string]interface{}{
			"outlet_id": req.OutletID.String(),
			"reason":    err.Error(),
		})
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:          uuid.New(),
		Reference:   models.GenerateOrderReference(now),
		UserID:      userID,
		OutletID:    req.OutletID,
		Lines:       lines,
		Total:       models.CalculateTotal(lines),
		Fulfillment: req.Fulfillment,
		Settlement:  req.Settlement,
		Channel:     channel,
		Status:      status,
		Notes:       req.Notes,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
		TimeOfDay:   now.Format(models.TimeOfDayLayout),
	}

	if err := s.orders.InsertOrder(ctx, order, &userID); err != nil {
		restoreErr := s.restore(ctx, req.OutletID, lines)
		s.cache.Invalidate(req.OutletID)
		return nil, errors.Join(fmt.Errorf("insert order: %w", err), restoreErr)
	}

	s.logger.Info("order_placed", "Order placed", requestID, map[string]interface{}{
		"order_reference": order.Reference,
		"outlet_id":       order.OutletID.String(),
		"status":          string(order.Status),
		"channel":         string(order.Channel),
		"total":           order.Total.StringFixed(2),
	})

	s.notifier.InventoryChanged(ctx, models.CreateInventoryChangedMessage(order.OutletID, "order_placed", lineItemIDs(lines)...))
	s.notifier.OrderStatusChanged(ctx, models.CreateStatusUpdateMessage(order, "", &userID))

	return order, nil
}

// reserve takes each line in order; on failure every line already taken is given back
func (s *Service) reserve(ctx context.Context, outletID uuid.UUID, requested []models.LineRequest) ([]models.OrderLine, error) {
	lines := make([]models.OrderLine, 0, len(requested))
	for i, req := range requested {
		line, err := s.ledger.Reserve(ctx, outletID, req.MenuItemID, req.Quantity)
		if err != nil {
			restoreErr := s.restore(ctx, outletID, lines)
			return nil, errors.Join(fmt.Errorf("line %d: %w", i+1, err), restoreErr)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// restore returns reserved lines to stock even if ctx was cancelled
func (s *Service) restore(ctx context.Context, outletID uuid.UUID, lines []models.OrderLine) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, line := range lines {
		if err := s.ledger.Restore(ctx, outletID, line.MenuItemID, line.Quantity); err != nil {
			s.logger.Error("restore_failed", "Failed to return reserved stock", logger.RequestIDFrom(ctx), err, map[string]interface{}{
				"outlet_id":    outletID.String(),
				"menu_item_id": line.MenuItemID.String(),
				"quantity":     line.Quantity,
			})
			errs = append(errs, fmt.Errorf("restore %s: %w", line.MenuItemID, err))
		}
	}
	return errors.Join(errs...)
}

func lineItemIDs(lines []models.OrderLine) []uuid.UUID {
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.MenuItemID
	}
	return ids
}

// Get returns an order visible to the principal
func (s *Service) Get(ctx context.Context, p models.Principal, reference string) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !canView(p, order) {
		return nil, apperr.Unauthorized("not allowed to view order %s", reference)
	}
	return order, nil
}

// History returns the status log of an order visible to the principal
func (s *Service) History(ctx context.Context, p models.Principal, reference string) ([]models.OrderStatusHistory, error) {
	if _, err := s.Get(ctx, p, reference); err != nil {
		return nil, err
	}
	return s.orders.History(ctx, reference)
}

// ListMine returns the principal's own orders
func (s *Service) ListMine(ctx context.Context, p models.Principal, status models.OrderStatus, limit int) ([]models.Order, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.InvalidInput("unknown status %q", status)
	}
	userID := p.UserID
	return s.orders.ListOrders(ctx, models.OrderQuery{UserID: &userID, Status: status, Limit: limit})
}

// ListOutlet returns an outlet's orders to its staff and to approvers
func (s *Service) ListOutlet(ctx context.Context, p models.Principal, outletID uuid.UUID, status models.OrderStatus, limit int) ([]models.Order, error) {
	if !p.CanApprove(outletID) {
		return nil, apperr.Unauthorized("not allowed to list orders of outlet %s", outletID)
	}
	if status != "" && !status.Valid() {
		return nil, apperr.InvalidInput("unknown status %q", status)
	}
	return s.orders.ListOrders(ctx, models.OrderQuery{OutletID: &outletID, Status: status, Limit: limit})
}

func canView(p models.Principal, order *models.Order) bool {
	return order.UserID == p.UserID || p.CanOperate(order.OutletID)
}
