package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"canteen-system/internal/apperr"
	"canteen-system/internal/cache"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

// Repository reads and writes menu items. Every write derives availability from quantity.
type Repository interface {
	GetItem(ctx context.Context, outletID, itemID uuid.UUID) (models.MenuItem, error)
	ListMenu(ctx context.Context, outletID uuid.UUID, filter models.MenuFilter) ([]models.MenuItem, error)
	CreateItem(ctx context.Context, item *models.MenuItem) error
	UpdateItem(ctx context.Context, item *models.MenuItem) error
	SetQuantities(ctx context.Context, outletID uuid.UUID, updates []models.QuantityUpdate) error
	DeleteItem(ctx context.Context, outletID, itemID uuid.UUID) error
}

// OutletRegistry registers outlets and answers whether they take orders
type OutletRegistry interface {
	IsActive(ctx context.Context, outletID uuid.UUID) (bool, error)
	CreateOutlet(ctx context.Context, o models.Outlet, creds models.GatewayCredentials) error
}

// Cache is the read-through menu cache
type Cache interface {
	Load(ctx context.Context, key cache.Key, load cache.Loader) ([]models.MenuItem, error)
	Invalidate(outletID uuid.UUID)
}

// Notifier announces inventory changes
type Notifier interface {
	InventoryChanged(ctx context.Context, msg *models.InventoryChangedMessage)
}

// Service serves menus through the cache and applies operator edits
type Service struct {
	repo     Repository
	outlets  OutletRegistry
	cache    Cache
	notifier Notifier
	logger   *logger.Logger
}

// NewService creates a new menu service
func NewService(repo Repository, outlets OutletRegistry, c Cache, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		outlets:  outlets,
		cache:    c,
		notifier: notifier,
		logger:   log,
	}
}

// List returns a filtered view of an outlet's menu
func (s *Service) List(ctx context.Context, outletID uuid.UUID, filter models.MenuFilter) ([]models.MenuItem, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	active, err := s.outlets.IsActive(ctx, outletID)
	if err != nil {
		return nil, fmt.Errorf("check outlet: %w", err)
	}
	if !active {
		return nil, apperr.NotFound("outlet %s not found", outletID)
	}

	key := cache.Key{OutletID: outletID, Category: filter.Category, Availability: filter.Availability}
	return s.cache.Load(ctx, key, func(ctx context.Context) ([]models.MenuItem, error) {
		return s.repo.ListMenu(ctx, outletID, filter)
	})
}

// Create adds an item to an outlet's menu
func (s *Service) Create(ctx context.Context, p models.Principal, outletID uuid.UUID, in *models.MenuItemInput) (*models.MenuItem, error) {
	if !p.CanOperate(outletID) {
		return nil, apperr.Unauthorized("not allowed to edit the menu of outlet %s", outletID)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	item := itemFrom(outletID, uuid.Nil, in)
	if err := s.repo.CreateItem(ctx, &item); err != nil {
		return nil, err
	}

	s.changed(ctx, p, outletID, "item_created", item.ID)
	return &item, nil
}

// Update overwrites an item's editable fields
func (s *Service) Update(ctx context.Context, p models.Principal, outletID, itemID uuid.UUID, in *models.MenuItemInput) (*models.MenuItem, error) {
	if !p.CanOperate(outletID) {
		return nil, apperr.Unauthorized("not allowed to edit the menu of outlet %s", outletID)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	item := itemFrom(outletID, itemID, in)
	if err := s.repo.UpdateItem(ctx, &item); err != nil {
		return nil, err
	}

	s.changed(ctx, p, outletID, "item_updated", item.ID)
	return &item, nil
}

// SetQuantities writes absolute stock levels for several items at once
func (s *Service) SetQuantities(ctx context.Context, p models.Principal, outletID uuid.UUID, updates []models.QuantityUpdate) error {
	if !p.CanOperate(outletID) {
		return apperr.Unauthorized("not allowed to edit the menu of outlet %s", outletID)
	}
	if err := models.ValidateQuantityUpdates(updates); err != nil {
		return err
	}

	if err := s.repo.SetQuantities(ctx, outletID, updates); err != nil {
		return err
	}

	ids := make([]uuid.UUID, len(updates))
	for i, u := range updates {
		ids[i] = u.MenuItemID
	}
	s.changed(ctx, p, outletID, "quantities_set", ids...)
	return nil
}

// Delete removes an item no order refers to
func (s *Service) Delete(ctx context.Context, p models.Principal, outletID, itemID uuid.UUID) error {
	if !p.CanOperate(outletID) {
		return apperr.Unauthorized("not allowed to edit the menu of outlet %s", outletID)
	}
	if err := s.repo.DeleteItem(ctx, outletID, itemID); err != nil {
		return err
	}

	s.changed(ctx, p, outletID, "item_deleted", itemID)
	return nil
}

// OutletRequest registers an outlet with its gateway key pair
type OutletRequest struct {
	Name             string `json:"name"`
	GatewayKeyID     string `json:"gateway_key_id"`
	GatewayKeySecret string `json:"gateway_key_secret"`
}

// CreateOutlet registers a new active outlet; admins only
func (s *Service) CreateOutlet(ctx context.Context, p models.Principal, req *OutletRequest) (*models.Outlet, error) {
	if p.Role != models.RoleAdmin {
		return nil, apperr.Unauthorized("only admins may register outlets")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.InvalidInput("name is required")
	}
	if (req.GatewayKeyID == "") != (req.GatewayKeySecret == "") {
		return nil, apperr.InvalidInput("gateway_key_id and gateway_key_secret must be set together")
	}

	outlet := models.Outlet{ID: uuid.New(), Name: name, Active: true}
	creds := models.GatewayCredentials{KeyID: req.GatewayKeyID, KeySecret: req.GatewayKeySecret}
	if err := s.outlets.CreateOutlet(ctx, outlet, creds); err != nil {
		return nil, err
	}

	s.logger.Info("outlet_created", "Outlet registered", logger.RequestIDFrom(ctx), map[string]interface{}{
		"outlet_id": outlet.ID.String(),
		"name":      outlet.Name,
		"gateway":   creds.KeyID != "",
	})
	return &outlet, nil
}

func (s *Service) changed(ctx context.Context, p models.Principal, outletID uuid.UUID, reason string, itemIDs ...uuid.UUID) {
	s.cache.Invalidate(outletID)

	s.logger.Info("menu_changed", "Menu updated", logger.RequestIDFrom(ctx), map[string]interface{}{
		"outlet_id":  outletID.String(),
		"reason":     reason,
		"items":      len(itemIDs),
		"changed_by": p.UserID.String(),
	})
	s.notifier.InventoryChanged(ctx, models.CreateInventoryChangedMessage(outletID, reason, itemIDs...))
}

func itemFrom(outletID, itemID uuid.UUID, in *models.MenuItemInput) models.MenuItem {
	return models.MenuItem{
		ID:          itemID,
		OutletID:    outletID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		Price:       in.Price,
		Quantity:    in.Quantity,
		ImageURL:    in.ImageURL,
	}
}
