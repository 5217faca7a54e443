package gateway

import (
	"sync"
	"time"
)

const defaultSyncTTL = 5 * time.Minute

// syncCache memoizes merged sync payloads per field/user key. Entries go
// stale after the TTL and are dropped lazily on access; there is no size
// bound and no eviction beyond explicit clear. Payloads are copied on the
// way in and out so no caller ever shares a map with the store.
type syncCache struct {
	mu      sync.RWMutex
	entries map[string]syncEntry
	ttl     time.Duration
	now     func() time.Time
}

type syncEntry struct {
	payload   map[string]any
	fetchedAt time.Time
}

func newSyncCache(ttl time.Duration) *syncCache {
	if ttl <= 0 {
		ttl = defaultSyncTTL
	}
	return &syncCache{
		entries: make(map[string]syncEntry),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *syncCache) clock() time.Time {
	return c.now()
}

func (c *syncCache) get(key string) (map[string]any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	return clonePayload(entry.payload), true
}

func (c *syncCache) put(key string, payload map[string]any) {
	c.mu.Lock()
	c.entries[key] = syncEntry{
		payload:   clonePayload(payload),
		fetchedAt: c.now(),
	}
	c.mu.Unlock()
}

// clonePayload copies a payload one nesting level deep. Sync payloads are flat
// merges whose only nested values are the soil and weather maps, so one level
// is enough to keep callers from writing into stored entries.
func clonePayload(payload map[string]any) map[string]any {
	copied := make(map[string]any, len(payload))
	for key, value := range payload {
		if nested, ok := value.(map[string]any); ok {
			inner := make(map[string]any, len(nested))
			for k, v := range nested {
				inner[k] = v
			}
			copied[key] = inner
			continue
		}
		copied[key] = value
	}
	return copied
}

func (c *syncCache) clear() int {
	c.mu.Lock()
	evicted := len(c.entries)
	c.entries = make(map[string]syncEntry)
	c.mu.Unlock()
	return evicted
}

func (c *syncCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
