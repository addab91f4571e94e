package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"canteen-system/internal/apperr"
)

// MenuItem represents a sellable item of an outlet.
// Available is derived from Quantity by every write and is never set on its own.
type MenuItem struct {
	ID          uuid.UUID       `json:"id"`
	OutletID    uuid.UUID       `json:"outlet_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Available   bool            `json:"is_available"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Availability filters menu listings
type Availability string

const (
	AvailabilityAll         Availability = "all"
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

// MenuFilter selects a view of an outlet's menu
type MenuFilter struct {
	Category     string
	Availability Availability
}

// Normalize fills defaults and canonicalises the category so equal views share a cache key
func (f MenuFilter) Normalize() (MenuFilter, error) {
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	switch f.Availability {
	case "":
		f.Availability = AvailabilityAll
	case AvailabilityAll, AvailabilityAvailable, AvailabilityUnavailable:
	default:
		return f, apperr.InvalidInput("availability must be one of: all, available, unavailable")
	}
	return f, nil
}

// Matches reports whether item belongs in the filtered view
func (f MenuFilter) Matches(item MenuItem) bool {
	if f.Category != "" && !strings.EqualFold(item.Category, f.Category) {
		return false
	}
	switch f.Availability {
	case AvailabilityAvailable:
		return item.Available
	case AvailabilityUnavailable:
		return !item.Available
	}
	return true
}

// MenuItemInput carries operator-editable fields
type MenuItemInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"image_url"`
}

// Validate validates operator input
func (in *MenuItemInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.InvalidInput("name is required")
	}
	if len(name) > 100 {
		return apperr.InvalidInput("name must not exceed 100 characters")
	}
	if in.Price.IsNegative() {
		return apperr.InvalidInput("price must not be negative")
	}
	if in.Quantity < 0 {
		return apperr.InvalidInput("quantity must not be negative")
	}
	return nil
}

// QuantityUpdate sets the stock of one item
type QuantityUpdate struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
}

// ValidateQuantityUpdates validates a bulk quantity write
func ValidateQuantityUpdates(updates []QuantityUpdate) error {
	if len(updates) == 0 {
		return apperr.InvalidInput("updates cannot be empty")
	}
	for i, u := range updates {
		if u.MenuItemID == uuid.Nil {
			return apperr.InvalidInput("updates[%d].menu_item_id is required", i)
		}
		if u.Quantity < 0 {
			return apperr.InvalidInput("updates[%d].quantity must not be negative", i)
		}
	}
	return nil
}

// CloneMenu copies a menu snapshot
func CloneMenu(items []MenuItem) []MenuItem {
	if items == nil {
		return nil
	}
	out := make([]MenuItem, len(items))
	copy(out, items)
	return out
}
