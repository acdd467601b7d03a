package rank

import (
	"container/heap"
	"math"

	"github.com/textkit/textkit/internal/index"
)

// KLDivergencePRF implements the two-component mixture model for
// pseudo-relevance feedback in the KL-divergence retrieval model (spec
// 4.5). It re-ranks by: running an initial ranker to get k feedback
// documents, fitting a feedback unigram model to those documents with the
// EM algorithm, interpolating its top max_terms terms into the query, and
// running the initial ranker again on the expanded query.
type KLDivergencePRF struct {
	Fwd           *index.Index // a Forward-kind index, for per-document term vectors
	InitialRanker Ranker
	Alpha         float64 // query interpolation weight
	Lambda        float64 // mixture model interpolation weight (background vs feedback)
	K             int     // number of feedback documents to retrieve
	MaxTerms      int     // number of feedback terms interpolated into the query
	MaxIters      int
	Delta         float64 // relative log-likelihood convergence threshold
}

// DefaultKLDivergencePRF returns a KLDivergencePRF configured with the
// same defaults as the reference implementation's alpha/lambda/k/max-terms.
func DefaultKLDivergencePRF(fwd *index.Index) *KLDivergencePRF {
	return &KLDivergencePRF{
		Fwd:           fwd,
		InitialRanker: NewDirichletPrior(2000),
		Alpha:         0.5,
		Lambda:        0.5,
		K:             10,
		MaxTerms:      50,
		MaxIters:      50,
		Delta:         1e-5,
	}
}

func (r *KLDivergencePRF) Name() string { return "kl-divergence-prf" }

func (r *KLDivergencePRF) InitialScore(queryLength float64, docSize uint64) float64 {
	return r.InitialRanker.InitialScore(queryLength, docSize)
}

func (r *KLDivergencePRF) ScoreOne(sd ScoreData) float64 {
	return r.InitialRanker.ScoreOne(sd)
}

// Rank performs the two-stage PRF retrieval documented on KLDivergencePRF.
// idx is the index used for the initial and final ranking passes (an
// Inverted-kind index); r.Fwd supplies per-document term vectors for
// feedback-model fitting.
func (r *KLDivergencePRF) Rank(idx *index.Index, query Query, k int) ([]Document, error) {
	fbDocs, err := Rank(idx, r.InitialRanker, query, r.K)
	if err != nil {
		return nil, err
	}
	if len(fbDocs) == 0 {
		// No feedback documents: fall back to the unexpanded ranking
		// (spec 4.5's documented empty-feedback-set failure mode).
		return Rank(idx, r.InitialRanker, query, k)
	}

	totalTerms := idx.TotalTerms()
	background := func(termID uint64) float64 {
		if totalTerms == 0 {
			return 0
		}
		return float64(idx.TotalOccurrences(termID)) / float64(totalTerms)
	}

	feedback, err := r.fitMixture(fbDocs, background)
	if err != nil {
		return nil, err
	}

	newQuery := r.interpolate(query, feedback)

	return Rank(idx, r.InitialRanker, newQuery, k)
}

// termWeights is one feedback document's per-term occurrence counts.
type termWeights map[uint64]float64

// fitMixture runs the EM algorithm fitting a feedback unigram model to
// the given documents' term vectors, against a fixed-probability
// background model (the corpus unigram model weighted by r.Lambda).
func (r *KLDivergencePRF) fitMixture(fbDocs []Document, background func(uint64) float64) (map[uint64]float64, error) {
	docs := make([]termWeights, 0, len(fbDocs))
	for _, d := range fbDocs {
		rec, err := r.Fwd.Postings(d.DocID)
		if err != nil {
			return nil, err
		}
		w := make(termWeights, len(rec.Entries))
		for _, e := range rec.Entries {
			w[e.SecondaryID] = float64(e.Count)
		}
		docs = append(docs, w)
	}

	feedback := maximumLikelihood(docs)

	oldLL := math.Inf(-1)
	relChange := math.MaxFloat64

	maxIters := r.MaxIters
	if maxIters <= 0 {
		maxIters = 50
	}
	delta := r.Delta
	if delta <= 0 {
		delta = 1e-5
	}

	for i := 0; i < maxIters && relChange >= delta; i++ {
		model := make(map[uint64]float64)
		var ll float64

		for _, doc := range docs {
			for termID, weight := range doc {
				pwc := background(termID)
				pwf := probability(feedback, termID)

				numerator := r.Lambda * pwc
				denominator := numerator + (1-r.Lambda)*pwf
				if denominator <= 0 {
					continue
				}

				pzw := numerator / denominator
				model[termID] += (1 - pzw) * weight
				ll += weight * math.Log(denominator)
			}
		}

		feedback = model
		if oldLL != math.Inf(-1) {
			relChange = (oldLL - ll) / oldLL
		}
		oldLL = ll
	}

	return feedback, nil
}

// maximumLikelihood returns the MLE unigram model (raw event counts,
// normalized by probability()) fit directly to docs.
func maximumLikelihood(docs []termWeights) map[uint64]float64 {
	model := make(map[uint64]float64)
	for _, doc := range docs {
		for termID, weight := range doc {
			model[termID] += weight
		}
	}
	return model
}

// probability normalizes a raw-count multinomial model to a probability,
// returning 0 for an unseen term or an empty model.
func probability(model map[uint64]float64, termID uint64) float64 {
	var total float64
	for _, c := range model {
		total += c
	}
	if total <= 0 {
		return 0
	}
	return model[termID] / total
}

// scoredTerm pairs a term_id with its feedback-model probability, for the
// bounded top-max_terms extraction below.
type scoredTerm struct {
	termID uint64
	prob   float64
}

type termHeap []scoredTerm

func (h termHeap) Len() int            { return len(h) }
func (h termHeap) Less(i, j int) bool  { return h[i].prob < h[j].prob }
func (h termHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *termHeap) Push(x interface{}) { *h = append(*h, x.(scoredTerm)) }
func (h *termHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// interpolate builds the expanded query: alpha times the top max_terms
// feedback-model terms, plus (1-alpha) times the original query's
// per-term probability (spec 4.5).
func (r *KLDivergencePRF) interpolate(query Query, feedback map[uint64]float64) Query {
	total := 0.0
	for termID := range feedback {
		total += feedback[termID]
	}

	maxTerms := r.MaxTerms
	if maxTerms <= 0 {
		maxTerms = 50
	}

	h := &termHeap{}
	for termID, raw := range feedback {
		p := 0.0
		if total > 0 {
			p = raw / total
		}
		st := scoredTerm{termID: termID, prob: p}
		if h.Len() < maxTerms {
			heap.Push(h, st)
			continue
		}
		if (*h)[0].prob >= st.prob {
			continue
		}
		heap.Pop(h)
		heap.Push(h, st)
	}

	newQuery := make(Query, h.Len()+len(query))
	for _, st := range *h {
		newQuery[st.termID] += r.Alpha * st.prob
	}

	var queryLength float64
	for _, qtf := range query {
		queryLength += qtf
	}
	if queryLength > 0 {
		for termID, qtf := range query {
			pwq := qtf / queryLength
			newQuery[termID] += (1 - r.Alpha) * pwq
		}
	}

	return newQuery
}
