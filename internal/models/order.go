package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"canteen-system/internal/apperr"
)

// Fulfillment represents how an order is served
type Fulfillment string

const (
	DineIn   Fulfillment = "dine_in"
	Takeaway Fulfillment = "takeaway"
)

// Settlement represents who pays for an order
type Settlement string

const (
	SettlementIndividual   Settlement = "individual"
	SettlementOrganization Settlement = "organization"
)

// PaymentChannel represents how an order's payment is collected
type PaymentChannel string

const (
	ChannelGateway      PaymentChannel = "gateway"
	ChannelQR           PaymentChannel = "qr"
	ChannelOrganization PaymentChannel = "organization"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusApproved  OrderStatus = "approved"
	StatusCompleted OrderStatus = "completed"
	StatusRejected  OrderStatus = "rejected"
	StatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

const (
	MaxOrderLines   = 20
	MaxNotesLength  = 500
	TimeOfDayLayout = "03:04 PM"
)

// OrderLine is a reserved line. UnitPrice is captured at reservation and never re-read.
type OrderLine struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// Subtotal returns UnitPrice × Quantity
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order represents a customer order
type Order struct {
	ID          uuid.UUID       `json:"id"`
	Reference   string          `json:"reference"`
	UserID      uuid.UUID       `json:"user_id"`
	OutletID    uuid.UUID       `json:"outlet_id"`
	Lines       []OrderLine     `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	Fulfillment Fulfillment     `json:"fulfillment"`
	Settlement  Settlement      `json:"settlement"`
	Channel     PaymentChannel  `json:"payment_channel"`
	Status      OrderStatus     `json:"status"`
	ApproverID  *uuid.UUID      `json:"approver_id,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	TimeOfDay   string          `json:"time_of_day"`
}

// LineRequest is a requested line before reservation
type LineRequest struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
}

// PlaceOrderRequest represents the request to create a new order
type PlaceOrderRequest struct {
	OutletID    uuid.UUID     `json:"outlet_id"`
	Lines       []LineRequest `json:"lines"`
	Fulfillment Fulfillment   `json:"fulfillment"`
	Settlement  Settlement    `json:"settlement"`
	Notes       *string       `json:"notes,omitempty"`
}

// OrderStatusHistory represents an entry in the order status log
type OrderStatusHistory struct {
	Status    OrderStatus `json:"status"`
	ChangedBy *uuid.UUID  `json:"changed_by,omitempty"`
	ChangedAt time.Time   `json:"timestamp"`
	Notes     *string     `json:"notes,omitempty"`
}

// Validate validates the place order request
func (req *PlaceOrderRequest) Validate() error {
	if req.OutletID == uuid.Nil {
		return apperr.InvalidInput("outlet_id is required")
	}

	switch req.Fulfillment {
	case DineIn, Takeaway:
	default:
		return apperr.InvalidInput("fulfillment must be one of: dine_in, takeaway")
	}

	switch req.Settlement {
	case SettlementIndividual, SettlementOrganization:
	default:
		return apperr.InvalidInput("settlement must be one of: individual, organization")
	}

	if req.Notes != nil && len(*req.Notes) > MaxNotesLength {
		return apperr.InvalidInput("notes must not exceed %d characters", MaxNotesLength)
	}

	return validateLines(req.Lines)
}

func validateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return apperr.InvalidInput("lines cannot be empty")
	}
	if len(lines) > MaxOrderLines {
		return apperr.InvalidInput("lines cannot contain more than %d entries", MaxOrderLines)
	}

	for i, line := range lines {
		prefix := fmt.Sprintf("lines[%d]", i)
		if line.MenuItemID == uuid.Nil {
			return apperr.InvalidInput("%s.menu_item_id is required", prefix)
		}
		if line.Quantity < 1 {
			return apperr.InvalidInput("%s.quantity must be at least 1", prefix)
		}
	}

	return nil
}

// CalculateTotal sums the captured line prices
func CalculateTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// InitialStatus returns the status a freshly placed order starts in
func InitialStatus(s Settlement) OrderStatus {
	if s == SettlementOrganization {
		return StatusPending
	}
	return StatusApproved
}

// ChannelFor returns the payment channel of an order placed directly (not through the gateway)
func ChannelFor(s Settlement) PaymentChannel {
	if s == SettlementOrganization {
		return ChannelOrganization
	}
	return ChannelQR
}

// GenerateOrderReference generates an order reference in format ORD_YYYYMMDD_HHMMSS_xxxxxx
func GenerateOrderReference(at time.Time) string {
	suffix := uuid.New().String()[:6]
	return fmt.Sprintf("ORD_%s_%s", at.UTC().Format("20060102_150405"), suffix)
}

// Transition is a conditional status change of one order
type Transition struct {
	Reference  string
	From       []OrderStatus
	To         OrderStatus
	ChangedBy  uuid.UUID
	ApproverID *uuid.UUID
	Notes      *string
}

// Allows reports whether the transition may start from status
func (t Transition) Allows(status OrderStatus) bool {
	for _, s := range t.From {
		if s == status {
			return true
		}
	}
	return false
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// OrderQuery filters order listings; nil fields match everything
type OrderQuery struct {
	OutletID *uuid.UUID
	UserID   *uuid.UUID
	Status   OrderStatus
	Limit    int
}

// EffectiveLimit clamps Limit into (0, MaxListLimit]
func (q OrderQuery) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultListLimit
	case q.Limit > MaxListLimit:
		return MaxListLimit
	}
	return q.Limit
}

// Matches reports whether order belongs in the listing
func (q OrderQuery) Matches(order *Order) bool {
	if q.OutletID != nil && order.OutletID != *q.OutletID {
		return false
	}
	if q.UserID != nil && order.UserID != *q.UserID {
		return false
	}
	return q.Status == "" || order.Status == q.Status
}
