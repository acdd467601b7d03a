package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/textkit/textkit/internal/postings"
)

// lruCache is the LRU substitutable variant spec 4.4 names alongside the
// default splay-tree cache. golang-lru/v2's Cache already serializes its
// own operations internally, satisfying spec 4.4's mutex requirement
// without a second lock here.
type lruCache struct {
	c *lru.Cache[uint64, postings.Record]
}

func newLRUCache(capacity int) (*lruCache, error) {
	if capacity < 1 {
		capacity = 1
	}
	c, err := lru.New[uint64, postings.Record](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: creating lru cache: %w", err)
	}
	return &lruCache{c: c}, nil
}

func (c *lruCache) Get(id uint64) (postings.Record, bool) {
	return c.c.Get(id)
}

func (c *lruCache) Put(id uint64, rec postings.Record) {
	c.c.Add(id, rec)
}

func (c *lruCache) Len() int {
	return c.c.Len()
}
