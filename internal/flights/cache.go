package flights

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/metrics"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// FetchFunc loads the value for a cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

type cacheConfig struct {
	ttl           time.Duration
	capacity      int
	now           Clock
	cacheFailures bool
	log           *zerolog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

// WithTTL sets the entry lifetime. Zero keeps entries forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *cacheConfig) { c.ttl = ttl }
}

// WithCapacity bounds the number of keys. Zero means unbounded.
func WithCapacity(n int) CacheOption {
	return func(c *cacheConfig) { c.capacity = n }
}

// WithClock replaces time.Now.
func WithClock(now Clock) CacheOption {
	return func(c *cacheConfig) { c.now = now }
}

// WithFailureCaching makes a failed fetch store and return the zero value
// for the TTL instead of returning the error.
func WithFailureCaching() CacheOption {
	return func(c *cacheConfig) { c.cacheFailures = true }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) CacheOption {
	return func(c *cacheConfig) { c.log = &l }
}

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache memoizes fetch results per key with a TTL and a capacity bound.
// Concurrent misses on the same key share a single fetch.
type Cache[V any] struct {
	name string
	cfg  cacheConfig
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	group   singleflight.Group
}

// NewCache creates an empty cache. name labels its logs and metrics.
func NewCache[V any](name string, opts ...CacheOption) *Cache[V] {
	cfg := cacheConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cache[V]{
		name:    name,
		cfg:     cfg,
		entries: make(map[string]cacheEntry[V]),
	}
	if cfg.log != nil {
		c.log = *cfg.log
	} else {
		c.log = logging.Component("cache")
	}
	c.log = c.log.With().Str("cache", name).Logger()
	return c
}

// GetOrFetch returns the cached value for key, calling fetch on a miss or
// after expiry. With failure caching enabled the returned error is always nil.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}
	metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		// a flight that finished just before this one may have filled the key
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		// the result is shared by every waiter, so one caller giving up
		// must not fail the others or cache a fallback
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			if !c.cfg.cacheFailures {
				return v, err
			}
			metrics.CacheRequests.WithLabelValues(c.name, "fallback").Inc()
			c.log.Error().Err(err).Str("key", key).Dur("ttl", c.cfg.ttl).
				Msg("fetch failed, caching empty result")
			var zero V
			v = zero
		}

		c.store(key, v)
		return v, nil
	})

	v, _ := res.(V)
	if err != nil {
		var zero V
		return zero, err
	}
	return v, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[V])
	c.mu.Unlock()
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e, c.cfg.now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) store(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.now()
	if _, exists := c.entries[key]; !exists && c.cfg.capacity > 0 && len(c.entries) >= c.cfg.capacity {
		c.evict(now)
	}
	c.entries[key] = cacheEntry[V]{value: v, storedAt: now}
}

// evict makes room for one entry: expired entries go first, then the oldest.
// Must be called with mu held.
func (c *Cache[V]) evict(now time.Time) {
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.cfg.capacity {
		return
	}

	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.log.Debug().Str("key", oldestKey).Msg("evicted oldest entry")
	}
}

func (c *Cache[V]) expired(e cacheEntry[V], now time.Time) bool {
	return c.cfg.ttl > 0 && !now.Before(e.storedAt.Add(c.cfg.ttl))
}
