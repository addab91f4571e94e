// Package memstore is an in-memory implementation of the storage interfaces.
// Every conditional write checks and applies under one lock, matching the
// row-level guarantees of the PostgreSQL statements.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"canteen-system/internal/apperr"
	"canteen-system/internal/models"
)

type outletRecord struct {
	outlet models.Outlet
	creds  models.GatewayCredentials
}

// Store holds outlets, menu items, orders and transactions in memory
type Store struct {
	mu           sync.Mutex
	outlets      map[uuid.UUID]outletRecord
	items        map[uuid.UUID]models.MenuItem
	orders       map[string]*models.Order
	history      map[string][]models.OrderStatusHistory
	transactions map[uuid.UUID]*models.Transaction
	claims       map[uuid.UUID]time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		outlets:      make(map[uuid.UUID]outletRecord),
		items:        make(map[uuid.UUID]models.MenuItem),
		orders:       make(map[string]*models.Order),
		history:      make(map[string][]models.OrderStatusHistory),
		transactions: make(map[uuid.UUID]*models.Transaction),
		claims:       make(map[uuid.UUID]time.Time),
	}
}

// AddOutlet seeds an outlet
func (s *Store) AddOutlet(o models.Outlet, creds models.GatewayCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outlets[o.ID] = outletRecord{outlet: o, creds: creds}
}

// AddItem seeds a menu item and returns it with availability derived
func (s *Store) AddItem(item models.MenuItem) models.MenuItem {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.Available = item.Quantity > 0
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return item
}

// Item returns the current state of a menu item
func (s *Store) Item(itemID uuid.UUID) (models.MenuItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	return item, ok
}

// Outlet directory

// IsActive reports whether the outlet exists and takes orders
func (s *Store) IsActive(ctx context.Context, outletID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outlets[outletID]
	return ok && rec.outlet.Active, nil
}

// Credentials returns the outlet's gateway key pair
func (s *Store) Credentials(ctx context.Context, outletID uuid.UUID) (models.GatewayCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outlets[outletID]
	if !ok {
		return models.GatewayCredentials{}, apperr.NotFound("outlet %s not found", outletID)
	}
	if rec.creds.KeyID == "" || rec.creds.KeySecret == "" {
		return models.GatewayCredentials{}, apperr.NotFound("outlet %s has no gateway credentials", outletID)
	}
	return rec.creds, nil
}

// CreateOutlet registers an outlet with its gateway credentials
func (s *Store) CreateOutlet(ctx context.Context, o models.Outlet, creds models.GatewayCredentials) error {
	s.AddOutlet(o, creds)
	return nil
}

// Ledger

// Reserve takes qty units of an item, refusing when stock is short
func (s *Store) Reserve(ctx context.Context, outletID, itemID uuid.UUID, qty int) (models.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := models.OrderLine{MenuItemID: itemID, Quantity: qty}
	item, ok := s.items[itemID]
	if !ok || item.OutletID != outletID {
		return line, apperr.NotFound("menu item %s not found at outlet", itemID)
	}
	if !item.Available || item.Quantity < qty {
		return line, apperr.InsufficientStock("%s", apperr.ErrInsufficientStock.Message)
	}

	item.Quantity -= qty
	item.Available = item.Quantity > 0
	item.UpdatedAt = time.Now().UTC()
	s.items[itemID] = item

	line.Name = item.Name
	line.UnitPrice = item.Price
	return line, nil
}

// Restore returns qty units of an item to stock
func (s *Store) Restore(ctx context.Context, outletID, itemID uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.OutletID != outletID {
		return apperr.NotFound("menu item %s not found at outlet", itemID)
	}
	item.Quantity += qty
	item.Available = item.Quantity > 0
	item.UpdatedAt = time.Now().UTC()
	s.items[itemID] = item
	return nil
}

// GetItem returns one menu item of an outlet
func (s *Store) GetItem(ctx context.Context, outletID, itemID uuid.UUID) (models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.OutletID != outletID {
		return models.MenuItem{}, apperr.NotFound("menu item %s not found at outlet", itemID)
	}
	return item, nil
}

// ListMenu returns the outlet's items matching filter
func (s *Store) ListMenu(ctx context.Context, outletID uuid.UUID, filter models.MenuFilter) ([]models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := []models.MenuItem{}
	for _, item := range s.items {
		if item.OutletID == outletID && filter.Matches(item) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// CreateItem inserts a menu item; ID is assigned when empty
func (s *Store) CreateItem(ctx context.Context, item *models.MenuItem) error {
	*item = s.AddItem(*item)
	return nil
}

// UpdateItem replaces an item, keeping its creation time
func (s *Store) UpdateItem(ctx context.Context, item *models.MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[item.ID]
	if !ok || current.OutletID != item.OutletID {
		return apperr.NotFound("menu item %s not found at outlet", item.ID)
	}
	item.Available = item.Quantity > 0
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.items[item.ID] = *item
	return nil
}

// SetQuantities overwrites stock for several items; nothing changes if any item is unknown
func (s *Store) SetQuantities(ctx context.Context, outletID uuid.UUID, updates []models.QuantityUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		item, ok := s.items[u.MenuItemID]
		if !ok || item.OutletID != outletID {
			return apperr.NotFound("menu item %s not found at outlet", u.MenuItemID)
		}
	}

	now := time.Now().UTC()
	for _, u := range updates {
		item := s.items[u.MenuItemID]
		item.Quantity = u.Quantity
		item.Available = u.Quantity > 0
		item.UpdatedAt = now
		s.items[u.MenuItemID] = item
	}
	return nil
}

// DeleteItem removes an item no order line refers to
func (s *Store) DeleteItem(ctx context.Context, outletID, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		for _, line := range o.Lines {
			if line.MenuItemID == itemID {
				return apperr.InvalidTransition("menu item %s is referenced by orders", itemID)
			}
		}
	}

	item, ok := s.items[itemID]
	if !ok || item.OutletID != outletID {
		return apperr.NotFound("menu item %s not found at outlet", itemID)
	}
	delete(s.items, itemID)
	return nil
}

// Orders

// InsertOrder stores the order with its initial status log entry
func (s *Store) InsertOrder(ctx context.Context, order *models.Order, changedBy *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.Reference]; exists {
		return apperr.InvalidInput("order %s already exists", order.Reference)
	}
	s.orders[order.Reference] = cloneOrder(order)
	s.history[order.Reference] = []models.OrderStatusHistory{{
		Status:    order.Status,
		ChangedBy: changedBy,
		ChangedAt: order.CreatedAt,
	}}
	return nil
}

// GetOrder returns a copy of the order
func (s *Store) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[reference]
	if !ok {
		return nil, apperr.NotFound("order %s not found", reference)
	}
	return cloneOrder(o), nil
}

// TransitionOrder moves the order to t.To only from one of t.From
func (s *Store) TransitionOrder(ctx context.Context, t models.Transition) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[t.Reference]
	if !ok {
		return nil, apperr.NotFound("order %s not found", t.Reference)
	}
	if !t.Allows(o.Status) {
		return nil, apperr.InvalidTransition("order %s is %s and cannot become %s", t.Reference, o.Status, t.To)
	}

	now := time.Now().UTC()
	o.Status = t.To
	if t.ApproverID != nil {
		id := *t.ApproverID
		o.ApproverID = &id
	}
	o.UpdatedAt = now

	changedBy := t.ChangedBy
	s.history[t.Reference] = append(s.history[t.Reference], models.OrderStatusHistory{
		Status:    t.To,
		ChangedBy: &changedBy,
		ChangedAt: now,
		Notes:     t.Notes,
	})
	return cloneOrder(o), nil
}

// ListOrders returns orders matching the query, newest first
func (s *Store) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := []models.Order{}
	for _, o := range s.orders {
		if q.Matches(o) {
			orders = append(orders, *cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit := q.EffectiveLimit(); len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// History returns the order's status log, oldest first
func (s *Store) History(ctx context.Context, reference string) ([]models.OrderStatusHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[reference]; !ok {
		return nil, apperr.NotFound("order %s not found", reference)
	}
	out := make([]models.OrderStatusHistory, len(s.history[reference]))
	copy(out, s.history[reference])
	return out, nil
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Lines = make([]models.OrderLine, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}

// Transactions

// CreateTransaction records a transaction in created status
func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for _, existing := range s.transactions {
		if existing.GatewayOrderID == t.GatewayOrderID {
			return apperr.InvalidInput("gateway order %s already recorded", t.GatewayOrderID)
		}
	}
	now := time.Now().UTC()
	t.Status = models.TransactionCreated
	t.CreatedAt, t.UpdatedAt = now, now
	s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

// GetTransaction returns a copy of the transaction
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, apperr.NotFound("transaction %s not found", id)
	}
	return cloneTransaction(t), nil
}

// MarkPaid moves created to paid, claims the settlement and reports whether this call won
func (s *Store) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.Status != models.TransactionCreated {
		return false, nil
	}
	t.Status = models.TransactionPaid
	t.GatewayPaymentID = &paymentID
	t.UpdatedAt = time.Now().UTC()
	s.claims[id] = t.UpdatedAt
	return true, nil
}

// MarkFailed moves created to failed and reports whether this call won
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.Status != models.TransactionCreated {
		return false, nil
	}
	t.Status = models.TransactionFailed
	t.FailureReason = &reason
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

// AttachOrder records the order a paid transaction produced
func (s *Store) AttachOrder(ctx context.Context, id uuid.UUID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return apperr.NotFound("transaction %s not found", id)
	}
	if t.OrderReference != nil {
		return apperr.InvalidTransition("transaction %s already has an order", id)
	}
	t.OrderReference = &reference
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordSettlementFailure notes why a paid transaction produced no order
func (s *Store) RecordSettlementFailure(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.transactions[id]; ok {
		t.FailureReason = &reason
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ClaimSettlement takes the settlement of a paid transaction that has no order yet.
// A claim older than staleAfter is treated as abandoned.
func (s *Store) ClaimSettlement(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.Status != models.TransactionPaid || t.OrderReference != nil || t.FailureReason != nil {
		return false, nil
	}
	now := time.Now().UTC()
	if at, held := s.claims[id]; held && now.Sub(at) < staleAfter {
		return false, nil
	}
	s.claims[id] = now
	return true, nil
}

// ReleaseSettlement drops the claim so a later callback can retry
func (s *Store) ReleaseSettlement(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, id)
	return nil
}

// OrderCount returns how many orders are stored
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func cloneTransaction(t *models.Transaction) *models.Transaction {
	c := *t
	if t.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), t.Metadata...)
	}
	return &c
}
