// Package cache provides a typed TTL cache on top of patrickmn/go-cache.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed, concurrency-safe TTL cache.
type Cache[K ~string, V any] struct {
	store *gocache.Cache
}

// New creates a cache whose expired entries are purged every cleanupInterval.
func New[K ~string, V any](cleanupInterval time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		store: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get returns the cached value for key.
func (c *Cache[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	v, ok := c.store.Get(string(key))
	if !ok {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores value for ttl. A ttl <= 0 never expires.
func (c *Cache[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.store.Set(string(key), value, ttl)
}

// Delete removes key.
func (c *Cache[K, V]) Delete(_ context.Context, key K) {
	c.store.Delete(string(key))
}

// Len returns the number of items, including expired ones not yet purged.
func (c *Cache[K, V]) Len() int {
	return c.store.ItemCount()
}

// Close drops all entries.
func (c *Cache[K, V]) Close() {
	c.store.Flush()
}
