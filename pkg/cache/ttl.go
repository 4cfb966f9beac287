package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/fetchkit/errors"
)

// TTLCache is a thread-safe time-to-live cache. An entry older than the
// configured TTL is treated as absent on read regardless of whether the
// sweep goroutine has reclaimed it yet.
type TTLCache[V any] struct {
	mu            sync.RWMutex
	ttl           time.Duration
	sweepInterval time.Duration
	items         map[string]*Entry[V]
	stats         *Statistics
	metrics       *cacheMetrics
	evictFn       EvictCallback[V]

	// Background sweep coordination
	shutdown chan struct{}
	done     chan struct{}
}

// NewTTL creates a new TTL cache. The sweep goroutine runs until either the
// context is cancelled or Close is called. Returns an error if metrics
// registration fails when requested.
func NewTTL[V any](ctx context.Context, ttl, sweepInterval time.Duration, options ...Option[V]) (*TTLCache[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewTTL", "ttl must be positive")
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.Wrap(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &TTLCache[V]{
		ttl:           ttl,
		sweepInterval: sweepInterval,
		items:         make(map[string]*Entry[V]),
		stats:         NewStatistics(),
		metrics:       metrics,
		evictFn:       opts.evictCallback,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}

	go c.sweep(ctx)

	return c, nil
}

// Get retrieves a value by key, checking for expiration.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		var zero V
		c.recordMiss()
		return zero, false
	}

	if entry.IsExpired() {
		// Reclaim the expired entry eagerly
		c.mu.Lock()
		// Double-check it's still there and still expired
		if current, stillThere := c.items[key]; stillThere && current.IsExpired() {
			delete(c.items, key)
			if c.evictFn != nil {
				defer c.evictFn(key, current.Value)
			}
			c.recordEviction(len(c.items))
		}
		c.mu.Unlock()

		var zero V
		c.recordMiss()
		return zero, false
	}

	c.recordHit()
	return entry.Value, true
}

// Set stores a value with the given key and stamps its expiration time.
func (c *TTLCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	now := time.Now()

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = &Entry[V]{
		Key:       key,
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
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
func (c *TTLCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		delete(c.items, key)
		if c.evictFn != nil {
			defer c.evictFn(key, entry.Value)
		}
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

// Clear removes all entries from the cache synchronously.
func (c *TTLCache[V]) Clear() error {
	c.mu.Lock()
	if c.evictFn != nil {
		for _, entry := range c.items {
			c.evictFn(entry.Key, entry.Value)
		}
	}
	c.items = make(map[string]*Entry[V])
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}

	return nil
}

// Size returns the current number of entries in the cache.
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()
	return size
}

// Keys returns all keys whose entries have not expired.
func (c *TTLCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	now := time.Now()
	for key, entry := range c.items {
		if now.Before(entry.ExpiresAt) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns cache statistics.
func (c *TTLCache[V]) Stats() *Statistics {
	return c.stats
}

// Close shuts down the cache and stops the background sweep goroutine.
func (c *TTLCache[V]) Close() error {
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
		return fmt.Errorf("timeout waiting for sweep goroutine to finish")
	}
}

// sweep runs in a background goroutine and periodically removes expired entries.
func (c *TTLCache[V]) sweep(ctx context.Context) {
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
func (c *TTLCache[V]) removeExpired() {
	now := time.Now()
	var expired []*Entry[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if now.After(entry.ExpiresAt) {
			expired = append(expired, entry)
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	// Eviction callbacks run outside the lock
	if c.evictFn != nil {
		for _, entry := range expired {
			c.evictFn(entry.Key, entry.Value)
		}
	}

	if len(expired) > 0 {
		for range expired {
			c.stats.Eviction()
		}
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			for range expired {
				c.metrics.recordEviction()
			}
			c.metrics.updateSize(size)
		}
	}
}

func (c *TTLCache[V]) recordHit() {
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
}

func (c *TTLCache[V]) recordMiss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *TTLCache[V]) recordEviction(size int) {
	c.stats.Eviction()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordEviction()
		c.metrics.updateSize(size)
	}
}
