// Package chunkmerge implements the external-sort chunk merger (spec 4.3):
// a size-priority pairwise merge of on-disk sorted chunks into one
// primary-key-sorted postings file, plus the lexicon built from it.
package chunkmerge

// chunkHandle is one on-disk sorted chunk awaiting merge, tracked by its
// byte size so the merge can prioritize pairing the smallest chunks first.
type chunkHandle struct {
	path       string
	size       int64
	generation int // 0 for original chunks, increases with each merge step
}

// bySizeHeap is the container/heap-compatible backing slice for the
// size-priority heap. The spec's open question (4.3/9) is whether to pop
// the two largest or the two smallest chunks each round; see Merger.Merge
// and DESIGN.md for the decision made here (smallest-first, minimizing
// total I/O, as the spec itself recommends).
type bySizeHeap []chunkHandle

func (h bySizeHeap) Len() int            { return len(h) }
func (h bySizeHeap) Less(i, j int) bool  { return h[i].size < h[j].size }
func (h bySizeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bySizeHeap) Push(x interface{}) { *h = append(*h, x.(chunkHandle)) }
func (h *bySizeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
