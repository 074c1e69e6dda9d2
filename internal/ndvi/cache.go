package ndvi

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/farmndvi/internal/metrics"
	"github.com/sells-group/farmndvi/internal/model"
)

// DefaultTTL is how long a farm snapshot is served before it is rebuilt.
const DefaultTTL = time.Hour

// Source builds fresh farm snapshots. *Aggregator satisfies it.
type Source interface {
	Aggregate(ctx context.Context, farmID, farmName string) (*model.FarmSnapshot, error)
}

type cacheEntry struct {
	snapshot *model.FarmSnapshot
	cachedAt time.Time
}

// Cache keeps one snapshot per farm for DefaultTTL. Entries are overwritten
// on refresh and never evicted otherwise. Safe for concurrent use.
type Cache struct {
	source Source
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group

	nowFunc func() time.Time
}

// NewCache creates an empty cache in front of source.
func NewCache(source Source) *Cache {
	return &Cache{
		source:  source,
		ttl:     DefaultTTL,
		entries: make(map[string]cacheEntry),
		nowFunc: time.Now,
	}
}

// Get returns farmID's snapshot. It aggregates and overwrites the entry when
// forceRefresh is set, when there is no entry, or when the entry is at least
// an hour old; otherwise it returns the cached snapshot unchanged. Returned
// snapshots are shared and must not be modified.
//
// Concurrent non-forced misses for one farm share a single aggregation, which
// runs to completion even if the caller that started it goes away. The only
// error is ctx being done; nothing is cached for a cancelled forced refresh.
func (c *Cache) Get(ctx context.Context, farmID, farmName string, forceRefresh bool) (*model.FarmSnapshot, error) {
	if forceRefresh {
		metrics.CacheLookups.WithLabelValues("forced").Inc()
		return c.refresh(ctx, farmID, farmName)
	}

	snap, outcome := c.lookup(farmID)
	metrics.CacheLookups.WithLabelValues(outcome).Inc()
	zap.L().Debug("ndvi: cache lookup", zap.String("farm_id", farmID), zap.String("outcome", outcome))
	if snap != nil {
		return snap, nil
	}

	ch := c.group.DoChan(farmID, func() (any, error) {
		if snap, _ := c.lookup(farmID); snap != nil {
			return snap, nil
		}
		return c.refresh(context.WithoutCancel(ctx), farmID, farmName)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*model.FarmSnapshot), nil
	}
}

// Peek returns the cached snapshot for farmID regardless of age.
func (c *Cache) Peek(farmID string) (*model.FarmSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[farmID]
	return e.snapshot, ok
}

// lookup returns a fresh entry, or nil with the reason it missed.
func (c *Cache) lookup(farmID string) (*model.FarmSnapshot, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[farmID]
	if !ok {
		return nil, "miss"
	}
	if c.nowFunc().Sub(e.cachedAt) >= c.ttl {
		return nil, "expired"
	}
	return e.snapshot, "hit"
}

func (c *Cache) refresh(ctx context.Context, farmID, farmName string) (*model.FarmSnapshot, error) {
	snap, err := c.source.Aggregate(ctx, farmID, farmName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A refresh must always read as newer than what it replaces.
	if prev, ok := c.entries[farmID]; ok && !snap.LastUpdated.After(prev.snapshot.LastUpdated) {
		snap.LastUpdated = prev.snapshot.LastUpdated.Add(time.Millisecond)
	}
	c.entries[farmID] = cacheEntry{snapshot: snap, cachedAt: c.nowFunc()}
	return snap, nil
}
