package server

import (
	"sync"
	"time"
)

// checkCache is a TTL-bounded existence cache for Archive.Check results,
// keyed "<namespace>/<digest>". No third-party TTL cache crate turned up
// anywhere in the retrieved pack, so this is hand-rolled against
// time.Time rather than a library's Cache type; see DESIGN.md.
type checkCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	exists    bool
	expiresAt time.Time
}

// newCheckCache builds a cache with the given TTL. A TTL of zero
// disables caching: get always misses and set is a no-op.
func newCheckCache(ttl time.Duration) *checkCache {
	return &checkCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *checkCache) get(key string) (exists bool, hit bool) {
	if c.ttl <= 0 {
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return false, false
	}
	return e.exists, true
}

func (c *checkCache) set(key string, exists bool) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{exists: exists, expiresAt: time.Now().Add(c.ttl)}
}
