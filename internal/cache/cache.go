package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Entry is a cached value with the time it was stored
type Entry[T any] struct {
	Value     T
	Timestamp time.Time
}

// TTL caches values for a fixed duration.
type TTL[T any] struct {
	ttl     time.Duration
	now     func() time.Time
	entries sync.Map
}

// New creates a cache whose entries expire after ttl. A non-positive ttl
// disables caching.
func New[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{ttl: ttl, now: time.Now}
}

// Get returns a live entry for key.
func (c *TTL[T]) Get(key string) (T, bool) {
	var zero T
	if c.ttl <= 0 {
		return zero, false
	}
	val, ok := c.entries.Load(key)
	if !ok {
		return zero, false
	}
	entry := val.(Entry[T])
	if c.now().Sub(entry.Timestamp) >= c.ttl {
		c.entries.Delete(key)
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key.
func (c *TTL[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.entries.Store(key, Entry[T]{Value: value, Timestamp: c.now()})
}

// GenerateKey derives a cache key from its parts
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
