package gaps

import (
	"container/list"
	"sync"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// cacheEntry is one cached gap set for an (owner, date) key. version
// counts recalculations of the key since the cache was created, and
// source records where the dominant gap in the set came from.
type cacheEntry struct {
	key          string
	gaps         []*schema.TimeGap
	version      int
	source       schema.GapSource
	calculatedAt time.Time
}

// ttlCache is a bounded FIFO cache of computed gap sets. Entries expire
// after the TTL; when the cache is full the oldest entry is evicted
// regardless of freshness.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]*list.Element
	order   *list.List

	// versions outlives the entries so a recalculation after an
	// invalidation still bumps the key's version instead of starting
	// over at one.
	versions map[string]int

	now func() time.Time
}

func newTTLCache(ttl time.Duration, max int) *ttlCache {
	return &ttlCache{
		ttl:      ttl,
		max:      max,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		versions: make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// get returns the cached gap set, or ok=false when absent or stale. A
// stale entry is removed on access.
func (c *ttlCache) get(key string) ([]*schema.TimeGap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.calculatedAt) > c.ttl {
		c.remove(el)
		return nil, false
	}
	return entry.gaps, true
}

// put stores a gap set, evicting the oldest entry when full. Re-putting
// an existing key refreshes it and moves it to the back of the eviction
// order. Each put bumps the key's version.
func (c *ttlCache) put(key string, gaps []*schema.TimeGap, source schema.GapSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	for c.max > 0 && c.order.Len() >= c.max {
		c.remove(c.order.Front())
	}
	c.versions[key]++
	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:          key,
		gaps:         gaps,
		version:      c.versions[key],
		source:       source,
		calculatedAt: c.now(),
	})
}

// meta reports the version and source of a cached key, stale or not.
func (c *ttlCache) meta(key string) (version int, source schema.GapSource, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.entries[key]
	if !found {
		return 0, "", false
	}
	entry := el.Value.(*cacheEntry)
	return entry.version, entry.source, true
}

// invalidate drops one key.
func (c *ttlCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// purgeExpired drops every stale entry and reports how many were removed.
func (c *ttlCache) purgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*cacheEntry).calculatedAt.Before(cutoff) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// remove must be called with the mutex held.
func (c *ttlCache) remove(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.entries, entry.key)
}
