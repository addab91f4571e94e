package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

func newTestCache(ttl time.Duration) (*MenuCache, *time.Time) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMenuCache(ttl, logger.Discard())
	c.now = func() time.Time { return now }
	return c, &now
}

func menu(names ...string) []models.MenuItem {
	items := make([]models.MenuItem, len(names))
	for i, n := range names {
		items[i] = models.MenuItem{ID: uuid.New(), Name: n, Quantity: 1, Available: true}
	}
	return items
}

func TestPutGetReturnsCopies(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	key := Key{OutletID: uuid.New(), Availability: models.AvailabilityAll}

	items := menu("Veg Thali")
	c.Put(key, items)
	items[0].Name = "mutated"

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "Veg Thali", got[0].Name)

	got[0].Quantity = 99
	again, _ := c.Get(key)
	assert.Equal(t, 1, again[0].Quantity)
}

func TestInvalidateDropsAllVariants(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	outlet := uuid.New()
	other := uuid.New()

	all := Key{OutletID: outlet, Availability: models.AvailabilityAll}
	lunch := Key{OutletID: outlet, Category: "lunch", Availability: models.AvailabilityAvailable}
	foreign := Key{OutletID: other, Availability: models.AvailabilityAll}

	c.Put(all, menu("a"))
	c.Put(lunch, menu("b"))
	c.Put(foreign, menu("c"))

	c.Invalidate(outlet)

	_, ok := c.Get(all)
	assert.False(t, ok)
	_, ok = c.Get(lunch)
	assert.False(t, ok)
	_, ok = c.Get(foreign)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Generation(outlet))
	assert.Equal(t, uint64(0), c.Generation(other))
}

func TestEntriesExpire(t *testing.T) {
	c, now := newTestCache(30 * time.Second)
	key := Key{OutletID: uuid.New(), Availability: models.AvailabilityAll}
	c.Put(key, menu("a"))

	*now = now.Add(29 * time.Second)
	_, ok := c.Get(key)
	assert.True(t, ok)

	*now = now.Add(time.Second)
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Sweep())
}

func TestLoadReadsThroughOnce(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	key := Key{OutletID: uuid.New(), Availability: models.AvailabilityAll}

	var calls int32
	loader := func(ctx context.Context) ([]models.MenuItem, error) {
		atomic.AddInt32(&calls, 1)
		return menu("a", "b"), nil
	}

	first, err := c.Load(context.Background(), key, loader)
	require.NoError(t, err)
	second, err := c.Load(context.Background(), key, loader)
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadErrorIsNotCached(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	key := Key{OutletID: uuid.New(), Availability: models.AvailabilityAll}

	_, err := c.Load(context.Background(), key, func(ctx context.Context) ([]models.MenuItem, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestLoadDoesNotStoreAcrossInvalidation(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	key := Key{OutletID: uuid.New(), Availability: models.AvailabilityAll}

	items, err := c.Load(context.Background(), key, func(ctx context.Context) ([]models.MenuItem, error) {
		c.Invalidate(key.OutletID)
		return menu("stale"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", items[0].Name)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	key := Key{OutletID: uuid.New(), Availability: models.AvailabilityAll}

	release := make(chan struct{})
	var calls int32
	loader := func(ctx context.Context) ([]models.MenuItem, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return menu("a"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Load(context.Background(), key, loader)
			assert.NoError(t, err)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	_, ok := c.Get(key)
	assert.True(t, ok)
}

func TestCancelledLeaderDoesNotFailJoiners(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	key := Key{OutletID: uuid.New(), Availability: models.AvailabilityAll}

	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr atomic.Value
	loader := func(ctx context.Context) ([]models.MenuItem, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
			return nil, err
		}
		return menu("a", "b"), nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Load(leaderCtx, key, loader)
		leaderDone <- err
	}()
	<-started

	joinerDone := make(chan []models.MenuItem, 1)
	go func() {
		items, err := c.Load(context.Background(), key, loader)
		assert.NoError(t, err)
		joinerDone <- items
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the shared load")
	}

	close(release)
	select {
	case items := <-joinerDone:
		assert.Len(t, items, 2)
	case <-time.After(time.Second):
		t.Fatal("joiner never got the shared load")
	}
	assert.Nil(t, loadErr.Load())

	_, ok := c.Get(key)
	assert.True(t, ok)
}

func TestJanitorStops(t *testing.T) {
	c, _ := newTestCache(time.Millisecond)
	c.StartJanitor(context.Background(), 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	c.Stop()
}
