// Package cache holds the read-through cache of outlet menu views.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

// Key identifies one filtered view of an outlet's menu
type Key struct {
	OutletID     uuid.UUID
	Category     string
	Availability models.Availability
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.OutletID, k.Category, k.Availability)
}

type entry struct {
	items     []models.MenuItem
	expiresAt time.Time
}

type outletEntries struct {
	generation uint64
	views      map[Key]entry
}

// loadTimeout caps a shared load once it no longer follows any caller's context
const loadTimeout = 10 * time.Second

// Loader reads a fresh menu view from the ledger
type Loader func(ctx context.Context) ([]models.MenuItem, error)

// MenuCache caches filtered menu views per outlet.
// Invalidate drops every view of an outlet and bumps its generation so a load
// that started before the invalidation cannot store its stale result.
type MenuCache struct {
	mu      sync.RWMutex
	outlets map[uuid.UUID]*outletEntries
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
	log     *logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewMenuCache creates a new menu cache
func NewMenuCache(ttl time.Duration, log *logger.Logger) *MenuCache {
	return &MenuCache{
		outlets: make(map[uuid.UUID]*outletEntries),
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// Get returns a copy of a cached view
func (c *MenuCache) Get(key Key) ([]models.MenuItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	oe, ok := c.outlets[key.OutletID]
	if !ok {
		return nil, false
	}
	e, ok := oe.views[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return models.CloneMenu(e.items), true
}

// Put stores a copy of items under key
func (c *MenuCache) Put(key Key, items []models.MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, items)
}

func (c *MenuCache) store(key Key, items []models.MenuItem) {
	oe := c.outletLocked(key.OutletID)
	oe.views[key] = entry{
		items:     models.CloneMenu(items),
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *MenuCache) outletLocked(outletID uuid.UUID) *outletEntries {
	oe, ok := c.outlets[outletID]
	if !ok {
		oe = &outletEntries{views: make(map[Key]entry)}
		c.outlets[outletID] = oe
	}
	return oe
}

// Invalidate drops every cached view of an outlet
func (c *MenuCache) Invalidate(outletID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oe := c.outletLocked(outletID)
	oe.generation++
	oe.views = make(map[Key]entry)
}

// Generation returns the outlet's invalidation counter
func (c *MenuCache) Generation(outletID uuid.UUID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if oe, ok := c.outlets[outletID]; ok {
		return oe.generation
	}
	return 0
}

// Load returns the cached view or reads it through load.
// Concurrent misses for the same view and generation share one load.
func (c *MenuCache) Load(ctx context.Context, key Key, load Loader) ([]models.MenuItem, error) {
	if items, ok := c.Get(key); ok {
		return items, nil
	}

	gen := c.Generation(key.OutletID)
	flightKey := fmt.Sprintf("%s#%d", key, gen)

	// the load is shared, so it must not die with whichever caller started it
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		items, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.outletLocked(key.OutletID).generation == gen {
			c.store(key, items)
		}
		c.mu.Unlock()

		return items, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return models.CloneMenu(res.Val.([]models.MenuItem)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sweep removes expired views and returns how many were dropped
func (c *MenuCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, oe := range c.outlets {
		for key, e := range oe.views {
			if !now.Before(e.expiresAt) {
				delete(oe.views, key)
				removed++
			}
		}
	}
	return removed
}

// StartJanitor starts the background sweep loop
func (c *MenuCache) StartJanitor(ctx context.Context, interval time.Duration) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := c.Sweep(); removed > 0 {
					c.log.Debug("cache_swept", "Expired menu views removed", "", map[string]interface{}{
						"removed": removed,
					})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the janitor
func (c *MenuCache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
