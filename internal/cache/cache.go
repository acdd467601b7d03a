// Package cache implements the postings cache layer (spec 4.4): a bounded
// mapping from term_id (primary key) to a previously read postings_data,
// with several substitutable eviction variants behind one interface.
package cache

import (
	"fmt"

	"github.com/textkit/textkit/internal/postings"
)

// Cache maps term_id -> postings.Record under a bounded capacity policy.
// Implementations serialize access internally; callers never need their
// own mutex around a Cache (spec 4.4 concurrency: "cache operations are
// serialized by a mutex").
type Cache interface {
	// Get returns the cached record for id and whether it was present.
	Get(id uint64) (postings.Record, bool)
	// Put inserts or replaces the cached record for id, evicting an
	// entry first if the cache is at capacity.
	Put(id uint64, rec postings.Record)
	// Len returns the number of entries currently cached.
	Len() int
}

// Variant names the substitutable cache policies spec 4.4 allows.
type Variant string

const (
	VariantSplay    Variant = "splay" // default
	VariantLRU      Variant = "lru"
	VariantNoEvict  Variant = "no-evict"
	VariantShardLRU Variant = "shard-by-hash"
)

// constructors is the name -> constructor-closure registration table spec
// 9 asks for in place of cross-module friend/factory relationships.
var constructors = map[Variant]func(capacity int) (Cache, error){
	VariantSplay:   func(capacity int) (Cache, error) { return newSplayCache(capacity), nil },
	VariantLRU:     func(capacity int) (Cache, error) { return newLRUCache(capacity) },
	VariantNoEvict: func(capacity int) (Cache, error) { return newNoEvictCache(), nil },
	VariantShardLRU: func(capacity int) (Cache, error) {
		return newShardedCache(capacity, func(shardCap int) (Cache, error) { return newLRUCache(shardCap) })
	},
}

// New constructs the named cache variant with the given total capacity.
func New(variant Variant, capacity int) (Cache, error) {
	ctor, ok := constructors[variant]
	if !ok {
		return nil, fmt.Errorf("cache: unknown variant %q", variant)
	}
	return ctor(capacity)
}
