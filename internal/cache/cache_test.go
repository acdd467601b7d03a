package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/textkit/textkit/internal/postings"
)

func allVariants() []Variant {
	return []Variant{VariantSplay, VariantLRU, VariantNoEvict, VariantShardLRU}
}

func TestCacheReturnsBitExactRecords(t *testing.T) {
	for _, v := range allVariants() {
		v := v
		t.Run(string(v), func(t *testing.T) {
			c, err := New(v, 64)
			require.NoError(t, err)

			rec := postings.Record{PrimaryID: 7, Entries: []postings.Entry{
				{SecondaryID: 1, Count: 3},
				{SecondaryID: 2, Count: 5},
			}}
			c.Put(7, rec)

			got, ok := c.Get(7)
			require.True(t, ok)
			require.Equal(t, rec, got)

			_, ok = c.Get(999)
			require.False(t, ok)
		})
	}
}

func TestSplayCacheEvictsAtCapacity(t *testing.T) {
	c, err := New(VariantSplay, 2)
	require.NoError(t, err)

	c.Put(1, postings.Record{PrimaryID: 1})
	c.Put(2, postings.Record{PrimaryID: 2})
	require.Equal(t, 2, c.Len())

	c.Put(3, postings.Record{PrimaryID: 3})
	require.Equal(t, 2, c.Len())

	_, ok := c.Get(3)
	require.True(t, ok)
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(VariantLRU, 2)
	require.NoError(t, err)

	c.Put(1, postings.Record{PrimaryID: 1})
	c.Put(2, postings.Record{PrimaryID: 2})
	_, _ = c.Get(1) // touch 1 so 2 becomes the LRU entry
	c.Put(3, postings.Record{PrimaryID: 3})

	_, ok := c.Get(2)
	require.False(t, ok)
	_, ok = c.Get(1)
	require.True(t, ok)
	_, ok = c.Get(3)
	require.True(t, ok)
}

func TestUnknownVariantErrors(t *testing.T) {
	_, err := New("bogus", 10)
	require.Error(t, err)
}
