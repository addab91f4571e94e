package models

import "github.com/google/uuid"

// Role represents the action category a principal is cleared for
type Role string

const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller supplied by the identity layer
type Principal struct {
	UserID  uuid.UUID   `json:"user_id"`
	Role    Role        `json:"role"`
	Outlets []uuid.UUID `json:"outlets,omitempty"`
}

// HasOutlet reports whether the principal is assigned to outletID
func (p Principal) HasOutlet(outletID uuid.UUID) bool {
	for _, id := range p.Outlets {
		if id == outletID {
			return true
		}
	}
	return false
}

// CanOperate reports whether the principal may act as staff for outletID
func (p Principal) CanOperate(outletID uuid.UUID) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return p.Role == RoleOperator && p.HasOutlet(outletID)
}

// CanApprove reports whether the principal may sign off organization billing for outletID
func (p Principal) CanApprove(outletID uuid.UUID) bool {
	return p.Role == RoleApprover || p.CanOperate(outletID)
}

// Outlet is the part of an outlet record the core reads
type Outlet struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Active bool      `json:"is_active"`
}

// GatewayCredentials is an outlet's key pair at the payment gateway.
// KeySecret never leaves the server.
type GatewayCredentials struct {
	KeyID     string
	KeySecret string
}
