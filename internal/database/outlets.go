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

// OutletStore reads outlet records and their gateway credentials
type OutletStore struct {
	db *DB
}

// NewOutletStore creates a new outlet store
func NewOutletStore(db *DB) *OutletStore {
	return &OutletStore{db: db}
}

// IsActive reports whether the outlet exists and accepts orders
func (s *OutletStore) IsActive(ctx context.Context, outletID uuid.UUID) (bool, error) {
	var o models.Outlet
	err := s.db.Pool.QueryRow(ctx, GetOutletSQL, outletID).Scan(&o.ID, &o.Name, &o.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get outlet: %w", err)
	}
	return o.Active, nil
}

// Credentials returns the outlet's gateway key pair; an outlet without one is NotFound
func (s *OutletStore) Credentials(ctx context.Context, outletID uuid.UUID) (models.GatewayCredentials, error) {
	var creds models.GatewayCredentials
	err := s.db.Pool.QueryRow(ctx, GetOutletCredentialsSQL, outletID).Scan(&creds.KeyID, &creds.KeySecret)
	if errors.Is(err, pgx.ErrNoRows) {
		return creds, apperr.NotFound("outlet %s not found", outletID)
	}
	if err != nil {
		return creds, fmt.Errorf("get outlet credentials: %w", err)
	}
	if creds.KeyID == "" || creds.KeySecret == "" {
		return models.GatewayCredentials{}, apperr.NotFound("outlet %s has no gateway credentials", outletID)
	}
	return creds, nil
}

// CreateOutlet inserts an outlet, used for provisioning
func (s *OutletStore) CreateOutlet(ctx context.Context, o models.Outlet, creds models.GatewayCredentials) error {
	if _, err := s.db.Pool.Exec(ctx, InsertOutletSQL, o.ID, o.Name, o.Active, creds.KeyID, creds.KeySecret); err != nil {
		return fmt.Errorf("insert outlet: %w", err)
	}
	return nil
}
