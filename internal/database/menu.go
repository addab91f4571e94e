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

// MenuStore is the PostgreSQL-backed inventory ledger and menu repository
type MenuStore struct {
	db *DB
}

// NewMenuStore creates a new menu store
func NewMenuStore(db *DB) *MenuStore {
	return &MenuStore{db: db}
}

// Reserve atomically takes qty units of an item, recomputing availability in the same statement
func (s *MenuStore) Reserve(ctx context.Context, outletID, itemID uuid.UUID, qty int) (models.OrderLine, error) {
	line := models.OrderLine{MenuItemID: itemID, Quantity: qty}

	err := s.db.Pool.QueryRow(ctx, ReserveItemSQL, itemID, outletID, qty).Scan(&line.Name, &line.UnitPrice)
	if err == nil {
		return line, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return line, fmt.Errorf("reserve item %s: %w", itemID, err)
	}

	var exists bool
	if err := s.db.Pool.QueryRow(ctx, MenuItemExistsSQL, itemID, outletID).Scan(&exists); err != nil {
		return line, fmt.Errorf("check item %s: %w", itemID, err)
	}
	if !exists {
		return line, apperr.NotFound("menu item %s not found at outlet", itemID)
	}
	return line, apperr.InsufficientStock("%s", apperr.ErrInsufficientStock.Message)
}

// Restore returns qty units of an item to stock
func (s *MenuStore) Restore(ctx context.Context, outletID, itemID uuid.UUID, qty int) error {
	tag, err := s.db.Pool.Exec(ctx, RestoreItemSQL, itemID, outletID, qty)
	if err != nil {
		return fmt.Errorf("restore item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("menu item %s not found at outlet", itemID)
	}
	return nil
}

// GetItem returns one menu item
func (s *MenuStore) GetItem(ctx context.Context, outletID, itemID uuid.UUID) (models.MenuItem, error) {
	item, err := scanMenuItem(s.db.Pool.QueryRow(ctx, GetMenuItemSQL, itemID, outletID))
	if errors.Is(err, pgx.ErrNoRows) {
		return item, apperr.NotFound("menu item %s not found at outlet", itemID)
	}
	if err != nil {
		return item, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return item, nil
}

// ListMenu returns the filtered menu of an outlet
func (s *MenuStore) ListMenu(ctx context.Context, outletID uuid.UUID, filter models.MenuFilter) ([]models.MenuItem, error) {
	rows, err := s.db.Pool.Query(ctx, ListMenuSQL, outletID, filter.Category, string(filter.Availability))
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	defer rows.Close()

	items := []models.MenuItem{}
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreateItem inserts a new menu item; ID is assigned when empty
func (s *MenuStore) CreateItem(ctx context.Context, item *models.MenuItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.Available = item.Quantity > 0

	err := s.db.Pool.QueryRow(ctx, InsertMenuItemSQL,
		item.ID, item.OutletID, item.Name, item.Description, item.Category,
		item.Price, item.Quantity, item.ImageURL,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert menu item: %w", err)
	}
	return nil
}

// UpdateItem overwrites the editable fields of an item
func (s *MenuStore) UpdateItem(ctx context.Context, item *models.MenuItem) error {
	item.Available = item.Quantity > 0

	err := s.db.Pool.QueryRow(ctx, UpdateMenuItemSQL,
		item.ID, item.OutletID, item.Name, item.Description, item.Category,
		item.Price, item.Quantity, item.ImageURL,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("menu item %s not found at outlet", item.ID)
	}
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	return nil
}

// SetQuantities writes absolute stock levels; either every update applies or none
func (s *MenuStore) SetQuantities(ctx context.Context, outletID uuid.UUID, updates []models.QuantityUpdate) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, u := range updates {
			tag, err := tx.Exec(ctx, SetQuantitySQL, u.MenuItemID, outletID, u.Quantity)
			if err != nil {
				return fmt.Errorf("set quantity of %s: %w", u.MenuItemID, err)
			}
			if tag.RowsAffected() == 0 {
				return apperr.NotFound("menu item %s not found at outlet", u.MenuItemID)
			}
		}
		return nil
	})
}

// DeleteItem removes an item that no order references
func (s *MenuStore) DeleteItem(ctx context.Context, outletID, itemID uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var referenced bool
		if err := tx.QueryRow(ctx, MenuItemReferencedSQL, itemID).Scan(&referenced); err != nil {
			return fmt.Errorf("check item references: %w", err)
		}
		if referenced {
			return apperr.InvalidTransition("menu item %s is referenced by orders", itemID)
		}

		tag, err := tx.Exec(ctx, DeleteMenuItemSQL, itemID, outletID)
		if err != nil {
			return fmt.Errorf("delete menu item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("menu item %s not found at outlet", itemID)
		}
		return nil
	})
}

func scanMenuItem(row pgx.Row) (models.MenuItem, error) {
	var item models.MenuItem
	err := row.Scan(
		&item.ID, &item.OutletID, &item.Name, &item.Description, &item.Category,
		&item.Price, &item.Quantity, &item.Available, &item.ImageURL,
		&item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}
