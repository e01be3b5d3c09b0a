package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ttlEntry holds a stored value and the instant it was stored.
type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

// ttlCache is a thread-safe TTL cache. Expiry is evaluated lazily on
// Get; a background sweeper removes entries that are never read again.
type ttlCache[V any] struct {
	mu            sync.RWMutex
	ttl           time.Duration
	sweepInterval time.Duration
	items         map[string]ttlEntry[V]
	stats         *Statistics   // always initialized
	metrics       *cacheMetrics // optional, if metrics enabled

	shutdown chan struct{}
	done     chan struct{}
}

// NewTTL creates a TTL cache with the given TTL and sweep interval.
// The context bounds the lifetime of the background sweeper.
func NewTTL[V any](ctx context.Context, ttl, sweepInterval time.Duration, options ...Option[V]) (Cache[V], error) {
	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
	}

	c := &ttlCache[V]{
		ttl:           ttl,
		sweepInterval: sweepInterval,
		items:         make(map[string]ttlEntry[V]),
		stats:         NewStatistics(),
		metrics:       metrics,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}

	go c.sweep(ctx)

	return c, nil
}

// expired reports whether an entry stored at t is past the cache TTL.
func (c *ttlCache[V]) expired(e ttlEntry[V], now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}

// Get retrieves a value by key, deleting it if expired.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	now := time.Now()

	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	if c.expired(entry, now) {
		// Lazy eviction on access
		c.mu.Lock()
		if current, still := c.items[key]; still && c.expired(current, now) {
			delete(c.items, key)
			c.stats.Eviction()
			c.stats.UpdateSize(int64(len(c.items)))
			if c.metrics != nil {
				c.metrics.recordEviction()
				c.metrics.updateSize(len(c.items))
			}
		}
		c.mu.Unlock()

		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return entry.value, true
}

// Set stores a value with the current timestamp.
func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = ttlEntry[V]{value: value, storedAt: time.Now()}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}

	return !exists, nil
}

// Delete removes an entry by key.
func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(size)
		}
	}

	return exists, nil
}

// Clear removes all entries from the cache.
func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	c.items = make(map[string]ttlEntry[V])
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	return nil
}

// Size returns the current number of entries in the cache.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics.
func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the background sweeper.
func (c *ttlCache[V]) Close() error {
	select {
	case <-c.shutdown:
		// Already shutting down
	default:
		close(c.shutdown)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cache sweeper to finish")
	}
}

// sweep periodically removes expired entries so that keys nobody reads
// again do not pin memory forever.
func (c *ttlCache[V]) sweep(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the cache.
func (c *ttlCache[V]) removeExpired() {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for key, entry := range c.items {
		if c.expired(entry, now) {
			delete(c.items, key)
			removed++
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if removed > 0 {
		for i := 0; i < removed; i++ {
			c.stats.Eviction()
		}
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			for i := 0; i < removed; i++ {
				c.metrics.recordEviction()
			}
			c.metrics.updateSize(size)
		}
	}
}
