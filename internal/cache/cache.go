package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = 10 * time.Minute

// Cache is a typed in-process cache with per-entry TTL.
type Cache[K ~string, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type ttlCache[K ~string, V any] struct {
	store *gocache.Cache
}

// NewTTLCache returns a Cache backed by go-cache. A zero ttl on Set never
// expires.
func NewTTLCache[K ~string, V any]() Cache[K, V] {
	return &ttlCache[K, V]{
		store: gocache.New(gocache.NoExpiration, defaultCleanupInterval),
	}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	var zero V
	raw, ok := c.store.Get(string(key))
	if !ok {
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.store.Set(string(key), value, ttl)
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.store.Delete(string(key))
}

// Key joins non-empty lower-cased parts with "|".
func Key(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
