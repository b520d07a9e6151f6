package gateway

import (
	"sync"
	"time"

	"github.com/kopihq/kopi/internal/intent"
)

// cachedReply is the identity-independent part of a reply.
type cachedReply struct {
	Text     string
	Intent   intent.Intent
	Degraded bool
}

// responseCache memoizes answers per (identity, message) for a TTL so a
// repeated question skips retrieval and generation. Degraded answers are
// never cached.
type responseCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	reply   cachedReply
	expires time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(identity, message string) string {
	return identity + "\x00" + message
}

func (c *responseCache) Get(identity, message string) (cachedReply, bool) {
	if c.ttl <= 0 {
		return cachedReply{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(identity, message)]
	if !ok || c.now().After(e.expires) {
		return cachedReply{}, false
	}
	return e.reply, true
}

func (c *responseCache) Put(identity, message string, reply cachedReply) {
	if c.ttl <= 0 || reply.Degraded {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Opportunistic prune keeps the map bounded without a sweeper.
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[cacheKey(identity, message)] = cacheEntry{
		reply:   reply,
		expires: now.Add(c.ttl),
	}
}
