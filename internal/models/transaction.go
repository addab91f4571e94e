package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus represents the settlement state of a gateway payment
type TransactionStatus string

const (
	TransactionCreated TransactionStatus = "created"
	TransactionPaid    TransactionStatus = "paid"
	TransactionFailed  TransactionStatus = "failed"
)

// Transaction records a gateway payment. It produces at most one Order.
type Transaction struct {
	ID               uuid.UUID         `json:"id"`
	OutletID         uuid.UUID         `json:"outlet_id"`
	UserID           uuid.UUID         `json:"user_id"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID *string           `json:"gateway_payment_id,omitempty"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Status           TransactionStatus `json:"status"`
	Channel          PaymentChannel    `json:"channel"`
	Metadata         json.RawMessage   `json:"-"`
	OrderReference   *string           `json:"order_reference,omitempty"`
	FailureReason    *string           `json:"failure_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// OrderIntent is the order payload captured when a gateway checkout starts.
// The order is built from it only after the payment is verified.
type OrderIntent struct {
	UserID      uuid.UUID     `json:"user_id"`
	OutletID    uuid.UUID     `json:"outlet_id"`
	Lines       []LineRequest `json:"lines"`
	Fulfillment Fulfillment   `json:"fulfillment"`
	Notes       *string       `json:"notes,omitempty"`
}

// Request converts the intent back into an individual-settlement order request
func (i OrderIntent) Request() PlaceOrderRequest {
	return PlaceOrderRequest{
		OutletID:    i.OutletID,
		Lines:       i.Lines,
		Fulfillment: i.Fulfillment,
		Settlement:  SettlementIndividual,
		Notes:       i.Notes,
	}
}

// CheckoutRequest starts a gateway payment
type CheckoutRequest struct {
	OutletID    uuid.UUID     `json:"outlet_id"`
	Lines       []LineRequest `json:"lines"`
	Fulfillment Fulfillment   `json:"fulfillment"`
	Notes       *string       `json:"notes,omitempty"`
}

// Validate validates the checkout request with the same rules as a direct order
func (req *CheckoutRequest) Validate() error {
	place := PlaceOrderRequest{
		OutletID:    req.OutletID,
		Lines:       req.Lines,
		Fulfillment: req.Fulfillment,
		Settlement:  SettlementIndividual,
		Notes:       req.Notes,
	}
	return place.Validate()
}

// CheckoutResponse is returned to the client to open the gateway's payment sheet
type CheckoutResponse struct {
	TransactionID  uuid.UUID       `json:"transaction_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	GatewayKeyID   string          `json:"gateway_key_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// PaymentCallback is what the gateway reports after a successful payment
type PaymentCallback struct {
	TransactionID    uuid.UUID `json:"transaction_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Signature        string    `json:"signature"`
}

// PaymentFailure is what the gateway reports after a failed payment
type PaymentFailure struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	Reason         string    `json:"reason"`
}

// SettlementResult is the outcome of a verified callback
type SettlementResult struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	OrderReference string    `json:"order_reference"`
	Duplicate      bool      `json:"duplicate"`
}
