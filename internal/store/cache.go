package store

import (
	"bytes"
	"sync"
)

// CacheKey identifies one published value stream (e.g. a light's state
// topic, a cover's position) for dedupe purposes.
type CacheKey string

// Cache tracks the last payload published for each key so the MQTT bridge
// can skip republishing a value that has not changed.
type Cache struct {
	mu   sync.RWMutex
	last map[CacheKey][]byte
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{last: make(map[CacheKey][]byte)}
}

// ShouldPublish reports whether payload differs from the last payload
// recorded for key, and records payload as the new last value either way.
// The first call for a given key always returns true.
func (c *Cache) ShouldPublish(key CacheKey, payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.last[key]
	changed := !ok || !bytes.Equal(prev, payload)

	stored := make([]byte, len(payload))
	copy(stored, payload)
	c.last[key] = stored
	return changed
}

// Forget removes a key's cached value, forcing the next ShouldPublish call
// for it to return true. Used when a device is deleted and later recreated.
func (c *Cache) Forget(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, key)
}
