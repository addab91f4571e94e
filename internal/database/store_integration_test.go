package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen-system/internal/apperr"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

// testDSNEnv names a disposable PostgreSQL database; the tests below are skipped without it
const testDSNEnv = "CANTEEN_TEST_DATABASE_URL"

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := &DB{Pool: pool, logger: logger.Discard()}
	require.NoError(t, db.RunMigrations(ctx))
	return db
}

func seedOutlet(t *testing.T, db *DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, NewOutletStore(db).CreateOutlet(context.Background(),
		models.Outlet{ID: id, Name: "Test Canteen " + id.String()[:8], Active: true},
		models.GatewayCredentials{KeyID: "rzp_test", KeySecret: "s3cret"}))
	return id
}

func TestReserveLastUnitHasOneWinner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	outlet := seedOutlet(t, db)
	menu := NewMenuStore(db)

	item := &models.MenuItem{OutletID: outlet, Name: "Masala Dosa", Category: "breakfast", Price: decimal.NewFromInt(60), Quantity: 1}
	require.NoError(t, menu.CreateItem(ctx, item))

	const callers = 12
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		won   int
		short int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := menu.Reserve(ctx, outlet, item.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case apperr.Is(err, apperr.KindInsufficientStock):
				short++
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, callers-1, short)

	got, err := menu.GetItem(ctx, outlet, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)
	assert.False(t, got.Available)
}

func TestConcurrentApproveAndRejectHaveOneWinner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	outlet := seedOutlet(t, db)
	orders := NewOrderStore(db)

	item := &models.MenuItem{OutletID: outlet, Name: "Veg Thali", Category: "lunch", Price: decimal.NewFromInt(120), Quantity: 5}
	require.NoError(t, NewMenuStore(db).CreateItem(ctx, item))

	user := uuid.New()
	now := time.Now().UTC()
	order := &models.Order{
		ID:          uuid.New(),
		Reference:   models.GenerateOrderReference(now),
		UserID:      user,
		OutletID:    outlet,
		Lines:       []models.OrderLine{{MenuItemID: item.ID, Name: item.Name, Quantity: 1, UnitPrice: decimal.NewFromInt(120)}},
		Total:       decimal.NewFromInt(120),
		Fulfillment: models.DineIn,
		Settlement:  models.SettlementOrganization,
		Channel:     models.ChannelOrganization,
		Status:      models.StatusPending,
		TimeOfDay:   now.Format(models.TimeOfDayLayout),
		CreatedAt:   now,
	}
	require.NoError(t, orders.InsertOrder(ctx, order, &user))

	approver := uuid.New()
	targets := []models.OrderStatus{models.StatusApproved, models.StatusRejected, models.StatusApproved, models.StatusRejected}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []models.OrderStatus
	)
	for _, to := range targets {
		wg.Add(1)
		go func(to models.OrderStatus) {
			defer wg.Done()
			tr := models.Transition{
				Reference: order.Reference,
				From:      []models.OrderStatus{models.StatusPending},
				To:        to,
				ChangedBy: approver,
			}
			if to == models.StatusApproved {
				tr.ApproverID = &approver
			}
			_, err := orders.TransitionOrder(ctx, tr)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, to)
				return
			}
			assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), err)
		}(to)
	}
	wg.Wait()

	require.Len(t, winners, 1)

	got, err := orders.GetOrder(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.Status)

	history, err := orders.History(ctx, order.Reference)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSettlementClaimIsExclusive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	outlet := seedOutlet(t, db)
	txs := NewTransactionStore(db)

	tx := &models.Transaction{
		OutletID:       outlet,
		UserID:         uuid.New(),
		GatewayOrderID: "order_" + uuid.NewString(),
		Amount:         decimal.NewFromInt(120),
		Currency:       "INR",
		Channel:        models.ChannelGateway,
		Metadata:       []byte(`{}`),
	}
	require.NoError(t, txs.CreateTransaction(ctx, tx))

	won, err := txs.MarkPaid(ctx, tx.ID, "pay_1")
	require.NoError(t, err)
	require.True(t, won)

	claimed, err := txs.ClaimSettlement(ctx, tx.ID, time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed, "MarkPaid holds the claim")

	require.NoError(t, txs.ReleaseSettlement(ctx, tx.ID))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := txs.ClaimSettlement(ctx, tx.ID, time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, count)
}
