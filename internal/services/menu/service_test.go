package menu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen-system/internal/apperr"
	"canteen-system/internal/cache"
	"canteen-system/internal/logger"
	"canteen-system/internal/memstore"
	"canteen-system/internal/models"
	"canteen-system/internal/services/order"
)

type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) InventoryChanged(ctx context.Context, msg *models.InventoryChangedMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, msg.Reason)
}

func (n *recordingNotifier) OrderStatusChanged(ctx context.Context, msg *models.StatusUpdateMessage) {}

// countingRepository counts ledger reads behind the cache
type countingRepository struct {
	*memstore.Store
	mu    sync.Mutex
	reads int
}

func (r *countingRepository) ListMenu(ctx context.Context, outletID uuid.UUID, filter models.MenuFilter) ([]models.MenuItem, error) {
	r.mu.Lock()
	r.reads++
	r.mu.Unlock()
	return r.Store.ListMenu(ctx, outletID, filter)
}

func (r *countingRepository) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

type fixture struct {
	store    *memstore.Store
	repo     *countingRepository
	cache    *cache.MenuCache
	notifier *recordingNotifier
	service  *Service
	outlet   uuid.UUID
	operator models.Principal
	user     models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	f := &fixture{
		store:    store,
		repo:     &countingRepository{Store: store},
		cache:    cache.NewMenuCache(time.Minute, logger.Discard()),
		notifier: &recordingNotifier{},
		outlet:   uuid.New(),
		user:     models.Principal{UserID: uuid.New(), Role: models.RoleUser},
	}
	f.operator = models.Principal{UserID: uuid.New(), Role: models.RoleOperator, Outlets: []uuid.UUID{f.outlet}}
	store.AddOutlet(models.Outlet{ID: f.outlet, Name: "Main Canteen", Active: true}, models.GatewayCredentials{})
	f.service = NewService(f.repo, store, f.cache, f.notifier, logger.Discard())
	return f
}

func (f *fixture) add(name, category string, price int64, qty int) models.MenuItem {
	return f.store.AddItem(models.MenuItem{
		OutletID: f.outlet,
		Name:     name,
		Category: category,
		Price:    decimal.NewFromInt(price),
		Quantity: qty,
	})
}

func TestListFiltersAndCaches(t *testing.T) {
	f := newFixture(t)
	f.add("Veg Thali", "Meals", 120, 50)
	f.add("Masala Dosa", "Meals", 60, 0)
	f.add("Samosa", "Snacks", 15, 10)

	tests := []struct {
		name   string
		filter models.MenuFilter
		want   []string
	}{
		{name: "everything", filter: models.MenuFilter{}, want: []string{"Masala Dosa", "Veg Thali", "Samosa"}},
		{name: "category is case insensitive", filter: models.MenuFilter{Category: "MEALS"}, want: []string{"Masala Dosa", "Veg Thali"}},
		{name: "available only", filter: models.MenuFilter{Availability: models.AvailabilityAvailable}, want: []string{"Veg Thali", "Samosa"}},
		{name: "unavailable only", filter: models.MenuFilter{Availability: models.AvailabilityUnavailable}, want: []string{"Masala Dosa"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := f.service.List(context.Background(), f.outlet, tt.filter)
			require.NoError(t, err)
			names := make([]string, len(items))
			for i, it := range items {
				names[i] = it.Name
			}
			assert.Equal(t, tt.want, names)
		})
	}

	reads := f.repo.Reads()
	_, err := f.service.List(context.Background(), f.outlet, models.MenuFilter{Category: "meals"})
	require.NoError(t, err)
	assert.Equal(t, reads, f.repo.Reads(), "normalized filter should hit the cached view")
}

func TestListRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.List(context.Background(), f.outlet, models.MenuFilter{Availability: "sometimes"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.service.List(context.Background(), uuid.New(), models.MenuFilter{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestWritesInvalidateAndNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.operator, f.outlet, &models.MenuItemInput{Name: "Veg Thali", Category: "Meals", Price: decimal.NewFromInt(120), Quantity: 2})
	require.NoError(t, err)
	assert.True(t, created.Available)

	items, err := f.service.List(ctx, f.outlet, models.MenuFilter{Availability: models.AvailabilityAvailable})
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, f.service.SetQuantities(ctx, f.operator, f.outlet, []models.QuantityUpdate{{MenuItemID: created.ID, Quantity: 0}}))

	items, err = f.service.List(ctx, f.outlet, models.MenuFilter{Availability: models.AvailabilityAvailable})
	require.NoError(t, err)
	assert.Empty(t, items)

	updated, err := f.service.Update(ctx, f.operator, f.outlet, created.ID, &models.MenuItemInput{Name: "Veg Thali (Large)", Category: "Meals", Price: decimal.NewFromInt(150), Quantity: 5})
	require.NoError(t, err)
	assert.True(t, updated.Available)

	items, err = f.service.List(ctx, f.outlet, models.MenuFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Veg Thali (Large)", items[0].Name)
	assert.Equal(t, 5, items[0].Quantity)

	require.NoError(t, f.service.Delete(ctx, f.operator, f.outlet, created.ID))
	items, err = f.service.List(ctx, f.outlet, models.MenuFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.Equal(t, []string{"item_created", "quantities_set", "item_updated", "item_deleted"}, f.notifier.reasons)
}

func TestOrderPlacementIsVisibleThroughMenu(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thali := f.add("Veg Thali", "Meals", 120, 2)

	items, err := f.service.List(ctx, f.outlet, models.MenuFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, items[0].Quantity)

	orders := order.NewService(f.store, f.store, f.store, f.cache, f.notifier, logger.Discard())
	_, err = orders.Place(ctx, f.user, &models.PlaceOrderRequest{
		OutletID:    f.outlet,
		Lines:       []models.LineRequest{{MenuItemID: thali.ID, Quantity: 2}},
		Fulfillment: models.DineIn,
		Settlement:  models.SettlementIndividual,
	})
	require.NoError(t, err)

	items, err = f.service.List(ctx, f.outlet, models.MenuFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, items[0].Quantity)
	assert.False(t, items[0].Available)
}

func TestWritePermissionsAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.add("Samosa", "Snacks", 15, 10)
	otherOperator := models.Principal{UserID: uuid.New(), Role: models.RoleOperator, Outlets: []uuid.UUID{uuid.New()}}
	admin := models.Principal{UserID: uuid.New(), Role: models.RoleAdmin}
	input := &models.MenuItemInput{Name: "Samosa", Price: decimal.NewFromInt(15), Quantity: 3}

	_, err := f.service.Create(ctx, f.user, f.outlet, input)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.service.Update(ctx, otherOperator, f.outlet, item.ID, input)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	err = f.service.Delete(ctx, f.user, f.outlet, item.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	err = f.service.SetQuantities(ctx, admin, f.outlet, nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	err = f.service.SetQuantities(ctx, admin, f.outlet, []models.QuantityUpdate{{MenuItemID: item.ID, Quantity: 1}, {MenuItemID: uuid.New(), Quantity: 1}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	current, _ := f.store.Item(item.ID)
	assert.Equal(t, 10, current.Quantity, "a failed bulk write leaves every item untouched")

	_, err = f.service.Create(ctx, admin, f.outlet, &models.MenuItemInput{Name: "Free Lunch", Price: decimal.NewFromInt(-1)})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	assert.Empty(t, f.notifier.reasons)
}

func TestDeleteRefusedWhileOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.add("Samosa", "Snacks", 15, 10)

	orders := order.NewService(f.store, f.store, f.store, f.cache, f.notifier, logger.Discard())
	_, err := orders.Place(ctx, f.user, &models.PlaceOrderRequest{
		OutletID:    f.outlet,
		Lines:       []models.LineRequest{{MenuItemID: item.ID, Quantity: 1}},
		Fulfillment: models.Takeaway,
		Settlement:  models.SettlementIndividual,
	})
	require.NoError(t, err)

	err = f.service.Delete(ctx, f.operator, f.outlet, item.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestCreateOutlet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := models.Principal{UserID: uuid.New(), Role: models.RoleAdmin}

	_, err := f.service.CreateOutlet(ctx, f.operator, &OutletRequest{Name: "Juice Bar"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.service.CreateOutlet(ctx, admin, &OutletRequest{Name: "Juice Bar", GatewayKeyID: "rzp_key"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	outlet, err := f.service.CreateOutlet(ctx, admin, &OutletRequest{Name: " Juice Bar ", GatewayKeyID: "rzp_key", GatewayKeySecret: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "Juice Bar", outlet.Name)

	creds, err := f.store.Credentials(ctx, outlet.ID)
	require.NoError(t, err)
	assert.Equal(t, "rzp_key", creds.KeyID)

	items, err := f.service.List(ctx, outlet.ID, models.MenuFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}
