package order

import (
	"context"

	"canteen-system/internal/apperr"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

var (
	fromPending        = []models.OrderStatus{models.StatusPending}
	fromApproved       = []models.OrderStatus{models.StatusApproved}
	fromPendingOrReady = []models.OrderStatus{models.StatusPending, models.StatusApproved}
)

// Approve signs off a pending organization order
func (s *Service) Approve(ctx context.Context, p models.Principal, reference string) (*models.Order, error) {
	current, err := s.orders.GetOrder(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !p.CanApprove(current.OutletID) {
		return nil, apperr.Unauthorized("not allowed to approve order %s", reference)
	}

	approver := p.UserID
	return s.transition(ctx, current, models.Transition{
		Reference:  reference,
		From:       fromPending,
		To:         models.StatusApproved,
		ChangedBy:  p.UserID,
		ApproverID: &approver,
	})
}

// Reject declines a pending order. Reserved stock stays reserved.
func (s *Service) Reject(ctx context.Context, p models.Principal, reference string, notes *string) (*models.Order, error) {
	current, err := s.orders.GetOrder(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !p.CanApprove(current.OutletID) {
		return nil, apperr.Unauthorized("not allowed to reject order %s", reference)
	}

	return s.transition(ctx, current, models.Transition{
		Reference: reference,
		From:      fromPending,
		To:        models.StatusRejected,
		ChangedBy: p.UserID,
		Notes:     notes,
	})
}

// Complete marks an approved order as handed over
func (s *Service) Complete(ctx context.Context, p models.Principal, reference string) (*models.Order, error) {
	current, err := s.orders.GetOrder(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !p.CanOperate(current.OutletID) {
		return nil, apperr.Unauthorized("not allowed to complete order %s", reference)
	}

	return s.transition(ctx, current, models.Transition{
		Reference: reference,
		From:      fromApproved,
		To:        models.StatusCompleted,
		ChangedBy: p.UserID,
	})
}

// Cancel withdraws a pending or approved order and returns its stock
func (s *Service) Cancel(ctx context.Context, p models.Principal, reference string, notes *string) (*models.Order, error) {
	current, err := s.orders.GetOrder(ctx, reference)
	if err != nil {
		return nil, err
	}
	if current.UserID != p.UserID && !p.CanOperate(current.OutletID) {
		return nil, apperr.Unauthorized("not allowed to cancel order %s", reference)
	}

	order, err := s.transition(ctx, current, models.Transition{
		Reference: reference,
		From:      fromPendingOrReady,
		To:        models.StatusCancelled,
		ChangedBy: p.UserID,
		Notes:     notes,
	})
	if err != nil {
		return nil, err
	}

	// the order is already cancelled; a failed restore is logged for manual correction
	_ = s.restore(ctx, order.OutletID, order.Lines)
	s.cache.Invalidate(order.OutletID)
	s.notifier.InventoryChanged(ctx, models.CreateInventoryChangedMessage(order.OutletID, "order_cancelled", lineItemIDs(order.Lines)...))

	return order, nil
}

func (s *Service) transition(ctx context.Context, current *models.Order, t models.Transition) (*models.Order, error) {
	if !t.Allows(current.Status) {
		return nil, apperr.InvalidTransition("order %s is %s and cannot become %s", t.Reference, current.Status, t.To)
	}

	order, err := s.orders.TransitionOrder(ctx, t)
	if err != nil {
		return nil, err
	}

	changedBy := t.ChangedBy
	s.logger.Info("order_status_changed", "Order status changed", logger.RequestIDFrom(ctx), map[string]interface{}{
		"order_reference": order.Reference,
		"old_status":      string(current.Status),
		"new_status":      string(order.Status),
		"changed_by":      changedBy.String(),
	})
	s.notifier.OrderStatusChanged(ctx, models.CreateStatusUpdateMessage(order, current.Status, &changedBy))

	return order, nil
}
