package cache

import (
	"sync"

	"github.com/textkit/textkit/internal/postings"
)

// noEvictCache never evicts; entries accumulate until the caller stops
// inserting new ones (spec 4.4: "no-evict ... MAY be substituted").
type noEvictCache struct {
	mu      sync.Mutex
	entries map[uint64]postings.Record
}

func newNoEvictCache() *noEvictCache {
	return &noEvictCache{entries: make(map[uint64]postings.Record)}
}

func (c *noEvictCache) Get(id uint64) (postings.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[id]
	return rec, ok
}

func (c *noEvictCache) Put(id uint64, rec postings.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = rec
}

func (c *noEvictCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
