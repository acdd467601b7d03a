// Package rank implements the ranker framework (spec 4.5): score_data
// construction, the built-in rankers (BM25, pivoted length, Dirichlet-prior
// and Jelinek-Mercer language models, KL-divergence pseudo-relevance
// feedback), and top-k result collection.
package rank

// ScoreData is the per-(term,document) statistics view the framework
// hands to a ranker (spec 4.5).
type ScoreData struct {
	DocCount        uint64 // df: documents containing the term
	CorpusTermCount uint64 // cf: total occurrences of the term in the corpus
	NumDocs         uint64 // N
	DocSize         uint64 // dl
	AvgDL           float64
	DocTermCount    uint64  // tf: occurrences of the term in this document
	QueryTermWeight float64 // qtf -- fractional so PRF's interpolated query weights round-trip exactly
	QueryLength     float64 // |q|
	TotalTerms      uint64  // corpus-wide total token count
}

// Document is one scored candidate in a ranking result (spec 4.5's
// "top-k sorted results").
type Document struct {
	DocID uint64
	Score float64
}
