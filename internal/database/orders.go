package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"canteen-system/internal/apperr"
	"canteen-system/internal/models"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OrderStore persists orders, their lines and the status log
type OrderStore struct {
	db *DB
}

// NewOrderStore creates a new order store
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

// InsertOrder stores the order with its lines and the initial status log entry
func (s *OrderStore) InsertOrder(ctx context.Context, order *models.Order, changedBy *uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, InsertOrderSQL,
			order.ID, order.Reference, order.UserID, order.OutletID, order.Total,
			string(order.Fulfillment), string(order.Settlement), string(order.Channel),
			string(order.Status), order.ApproverID, order.Notes, order.TimeOfDay, order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, line := range order.Lines {
			_, err := tx.Exec(ctx, InsertOrderLineSQL,
				order.ID, i, line.MenuItemID, line.Name, line.Quantity, line.UnitPrice)
			if err != nil {
				return fmt.Errorf("insert order line %d: %w", i, err)
			}
		}

		if _, err := tx.Exec(ctx, InsertOrderStatusLogSQL, order.ID, string(order.Status), changedBy, nil); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}
		return nil
	})
}

// GetOrder returns the order with its lines
func (s *OrderStore) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	return getOrder(ctx, s.db.Pool, reference)
}

// TransitionOrder moves the order to `to` only if its current status is one of `from`.
// The status change and its log entry commit together.
func (s *OrderStore) TransitionOrder(ctx context.Context, t models.Transition) (*models.Order, error) {
	var order *models.Order

	from := make([]string, len(t.From))
	for i, st := range t.From {
		from[i] = string(st)
	}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var orderID uuid.UUID
		err := tx.QueryRow(ctx, TransitionOrderSQL, t.Reference, string(t.To), t.ApproverID, from).Scan(&orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := getOrder(ctx, tx, t.Reference)
			if getErr != nil {
				return getErr
			}
			return apperr.InvalidTransition("order %s is %s and cannot become %s", t.Reference, current.Status, t.To)
		}
		if err != nil {
			return fmt.Errorf("transition order: %w", err)
		}

		if _, err := tx.Exec(ctx, InsertOrderStatusLogSQL, orderID, string(t.To), t.ChangedBy, t.Notes); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}

		order, err = getOrder(ctx, tx, t.Reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns orders matching the query, newest first
func (s *OrderStore) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	rows, err := s.db.Pool.Query(ctx, ListOrdersSQL, q.OutletID, q.UserID, string(q.Status), q.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := loadLines(ctx, s.db.Pool, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

// History returns the status log of an order, oldest first
func (s *OrderStore) History(ctx context.Context, reference string) ([]models.OrderStatusHistory, error) {
	if _, err := s.GetOrder(ctx, reference); err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, GetOrderStatusHistorySQL, reference)
	if err != nil {
		return nil, fmt.Errorf("get status history: %w", err)
	}
	defer rows.Close()

	history := []models.OrderStatusHistory{}
	for rows.Next() {
		var h models.OrderStatusHistory
		var status string
		if err := rows.Scan(&status, &h.ChangedBy, &h.ChangedAt, &h.Notes); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		h.Status = models.OrderStatus(status)
		history = append(history, h)
	}
	return history, rows.Err()
}

func getOrder(ctx context.Context, q querier, reference string) (*models.Order, error) {
	order, err := scanOrder(q.QueryRow(ctx, GetOrderByReferenceSQL, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order %s not found", reference)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := loadLines(ctx, q, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var fulfillment, settlement, channel, status string
	err := row.Scan(
		&o.ID, &o.Reference, &o.UserID, &o.OutletID, &o.Total,
		&fulfillment, &settlement, &channel, &status,
		&o.ApproverID, &o.Notes, &o.TimeOfDay, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Fulfillment = models.Fulfillment(fulfillment)
	o.Settlement = models.Settlement(settlement)
	o.Channel = models.PaymentChannel(channel)
	o.Status = models.OrderStatus(status)
	return &o, nil
}

func loadLines(ctx context.Context, q querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*models.Order, len(orders))
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		o.Lines = []models.OrderLine{}
		byID[o.ID] = o
		ids[i] = o.ID
	}

	rows, err := q.Query(ctx, GetOrderLinesSQL, ids)
	if err != nil {
		return fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var line models.OrderLine
		if err := rows.Scan(&orderID, &line.MenuItemID, &line.Name, &line.Quantity, &line.UnitPrice); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	return rows.Err()
}
