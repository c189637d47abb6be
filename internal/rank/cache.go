package rank

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/wfi/internal/types"
)

// resultCache memoizes ranked completion lists per (query, limit) pair.
// Entries expire on a TTL and the whole cache is flushed whenever the index
// changes.
type resultCache struct {
	mu      sync.Mutex
	entries map[uint64]*cacheEntry
	order   []uint64
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	results []types.FileEntry
	stored  time.Time
}

func newResultCache(maxSize int, ttl time.Duration) *resultCache {
	return &resultCache{
		entries: make(map[uint64]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(query string, limit int) uint64 {
	h := xxhash.New()
	h.WriteString(query)
	h.Write([]byte{0, byte(limit), byte(limit >> 8)})
	return h.Sum64()
}

func (c *resultCache) get(key uint64) ([]types.FileEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.stored) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.results, true
}

func (c *resultCache) put(key uint64, results []types.FileEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = &cacheEntry{results: results, stored: time.Now()}
}

func (c *resultCache) evictOldestLocked() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
	}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*cacheEntry)
	c.order = nil
}
