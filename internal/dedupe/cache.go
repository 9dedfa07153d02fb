// ABOUTME: TTL cache for deduplicating inbound chat events
// ABOUTME: The Matrix frontend marks event IDs here so redelivered events are dropped

package dedupe

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache tracks seen keys for ttl, holding at most maxSize of them. The
// oldest key is evicted when the cache is full.
type Cache struct {
	mu   sync.Mutex // makes CheckAndMark atomic
	seen *expirable.LRU[string, struct{}]
}

// New creates a dedupe cache.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{seen: expirable.NewLRU[string, struct{}](maxSize, nil, ttl)}
}

// Check reports whether key was marked within the TTL.
func (c *Cache) Check(key string) bool {
	_, ok := c.seen.Peek(key)
	return ok
}

// CheckAndMark reports whether key was already seen, marking it if not.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen.Peek(key); ok {
		return true
	}
	c.seen.Add(key, struct{}{})
	return false
}

// Mark records key as seen, refreshing its TTL if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen.Add(key, struct{}{})
}

// Len returns the number of tracked keys, including any not yet reaped.
func (c *Cache) Len() int {
	return c.seen.Len()
}

// Close drops every tracked key.
func (c *Cache) Close() {
	c.seen.Purge()
}
