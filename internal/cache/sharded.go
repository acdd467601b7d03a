package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/textkit/textkit/internal/postings"
)

// shardedCache is the shard-by-hash substitutable variant (spec 4.4): N
// independent sub-caches, each responsible for a disjoint slice of the
// id space, so lookups across different shards never contend on the same
// mutex. Each shard is itself built from the given constructor (an LRU
// sub-cache by default, see cache.go's registration table).
type shardedCache struct {
	shards []Cache
}

const shardCount = 16

func newShardedCache(capacity int, newShard func(shardCapacity int) (Cache, error)) (*shardedCache, error) {
	if capacity < shardCount {
		capacity = shardCount
	}
	perShard := capacity / shardCount
	shards := make([]Cache, shardCount)
	for i := range shards {
		s, err := newShard(perShard)
		if err != nil {
			return nil, err
		}
		shards[i] = s
	}
	return &shardedCache{shards: shards}, nil
}

func (c *shardedCache) shardFor(id uint64) Cache {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	h := xxhash.Sum64(buf[:])
	return c.shards[h%uint64(shardCount)]
}

func (c *shardedCache) Get(id uint64) (postings.Record, bool) {
	return c.shardFor(id).Get(id)
}

func (c *shardedCache) Put(id uint64, rec postings.Record) {
	c.shardFor(id).Put(id, rec)
}

func (c *shardedCache) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.Len()
	}
	return n
}
