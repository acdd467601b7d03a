package rank

import (
	"container/heap"

	"github.com/textkit/textkit/internal/index"
)

// Ranker is the tagged-variant interface spec 9 asks for in place of a
// deep classifier/ranker hierarchy: BM25 | PivotedLength | DirichletPrior
// | JelinekMercer | KLDivergencePRF all implement it.
type Ranker interface {
	// Name identifies the ranker for logging/config round-tripping.
	Name() string
	// ScoreOne returns one term's contribution to a document's score.
	ScoreOne(sd ScoreData) float64
	// InitialScore returns the per-document baseline score added once per
	// candidate before any term contributions (spec 4.5: language models'
	// `|q|*log(alpha)`, where alpha = doc_constant(doc); zero for BM25 and
	// pivoted length).
	InitialScore(queryLength float64, docSize uint64) float64
}

// Query is a multiset of term_ids to their query-term weight (qtf).
// Weights are fractional so the KL-PRF interpolated query can reuse the
// same type as the original bag-of-words query.
type Query map[uint64]float64

// Rank scores every document containing at least one query term against
// idx using ranker, and returns the top k by score, ties broken by
// ascending doc_id (spec 4.5).
func Rank(idx *index.Index, ranker Ranker, query Query, k int) ([]Document, error) {
	var queryLength float64
	for _, qtf := range query {
		queryLength += qtf
	}

	scores := make(map[uint64]float64)
	seen := make(map[uint64]bool)

	numDocs := idx.NumDocs()
	avgDL := idx.AverageDocLength()
	totalTerms := idx.TotalTerms()

	for termID, qtf := range query {
		rec, err := idx.Postings(termID)
		if err != nil {
			return nil, err
		}
		if rec.Empty() {
			continue
		}
		df := uint64(rec.DocFrequency())
		cf := rec.TotalCount()
		for _, e := range rec.Entries {
			docID := e.SecondaryID
			if !seen[docID] {
				seen[docID] = true
				scores[docID] = ranker.InitialScore(queryLength, idx.DocLength(docID))
			}
			sd := ScoreData{
				DocCount:        df,
				CorpusTermCount: cf,
				NumDocs:         numDocs,
				DocSize:         idx.DocLength(docID),
				AvgDL:           avgDL,
				DocTermCount:    e.Count,
				QueryTermWeight: qtf,
				QueryLength:     queryLength,
				TotalTerms:      totalTerms,
			}
			scores[docID] += ranker.ScoreOne(sd)
		}
	}

	return topK(scores, k), nil
}

// topK maintains a bounded min-heap of size k keyed by score, ties
// broken by doc_id ascending (spec 4.5).
func topK(scores map[uint64]float64, k int) []Document {
	if k <= 0 {
		k = len(scores)
	}
	h := &resultHeap{}
	for docID, score := range scores {
		d := Document{DocID: docID, Score: score}
		if h.Len() < k {
			heap.Push(h, d)
			continue
		}
		if less(d, (*h)[0]) {
			continue
		}
		heap.Pop(h)
		heap.Push(h, d)
	}

	out := make([]Document, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Document)
	}
	return out
}

// less reports whether a ranks below b (a should be evicted/popped first
// from the min-heap): lower score first, and for equal scores, higher
// doc_id first (so ascending doc_id survives ties at the top).
func less(a, b Document) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

type resultHeap []Document

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(Document)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
