package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InventoryChangedMessage tells subscribers an outlet's menu view is stale
type InventoryChangedMessage struct {
	OutletID  uuid.UUID   `json:"outlet_id"`
	ItemIDs   []uuid.UUID `json:"item_ids,omitempty"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatusUpdateMessage represents an order status notification
type StatusUpdateMessage struct {
	OrderReference string      `json:"order_reference"`
	OutletID       uuid.UUID   `json:"outlet_id"`
	UserID         uuid.UUID   `json:"user_id"`
	OldStatus      OrderStatus `json:"old_status,omitempty"`
	NewStatus      OrderStatus `json:"new_status"`
	ChangedBy      *uuid.UUID  `json:"changed_by,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// CreateStatusUpdateMessage creates a StatusUpdateMessage for order status changes
func CreateStatusUpdateMessage(order *Order, oldStatus OrderStatus, changedBy *uuid.UUID) *StatusUpdateMessage {
	return &StatusUpdateMessage{
		OrderReference: order.Reference,
		OutletID:       order.OutletID,
		UserID:         order.UserID,
		OldStatus:      oldStatus,
		NewStatus:      order.Status,
		ChangedBy:      changedBy,
		Timestamp:      time.Now().UTC(),
	}
}

// CreateInventoryChangedMessage creates an InventoryChangedMessage
func CreateInventoryChangedMessage(outletID uuid.UUID, reason string, itemIDs ...uuid.UUID) *InventoryChangedMessage {
	return &InventoryChangedMessage{
		OutletID:  outletID,
		ItemIDs:   itemIDs,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// InventoryRoutingKey generates a routing key for inventory messages
func InventoryRoutingKey(outletID uuid.UUID) string {
	return fmt.Sprintf("inventory.%s", outletID)
}

// StatusRoutingKey generates a routing key for order status messages
func StatusRoutingKey(status OrderStatus) string {
	return fmt.Sprintf("order.%s", status)
}
