package gateway

import (
	"sync"
	"time"
)

const defaultReplayTTL = 5 * time.Minute

// replayCache remembers successful responses by method and idempotency key
// so a front-end retrying after a dropped connection gets the original
// answer instead of running the call twice. Failed calls are never stored.
type replayCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]replayEntry
}

type replayEntry struct {
	response RPCResponse
	expires  time.Time
}

func newReplayCache(ttl time.Duration) *replayCache {
	return &replayCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]replayEntry),
	}
}

func replayKey(method, idempotencyKey string) string {
	if idempotencyKey == "" {
		return ""
	}
	return method + "\x00" + idempotencyKey
}

// lookup returns the stored response re-addressed to requestID
func (c *replayCache) lookup(key, requestID string) (*RPCResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	resp := entry.response
	resp.ID = requestID
	return &resp, true
}

// store keeps resp until the TTL passes, sweeping expired entries
func (c *replayCache) store(key string, resp RPCResponse) {
	if resp.Error != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = replayEntry{response: resp, expires: now.Add(c.ttl)}
}

func (c *replayCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
