package rank

import "math"

// languageModelKind selects which smoothing rule a languageModelRanker
// applies (spec 4.5: "each ranker defines smoothed_prob(term|doc) and
// doc_constant(doc)").
type languageModelKind int

const (
	dirichletPrior languageModelKind = iota
	jelinekMercer
)

// languageModelRanker implements the generic LM scoring rule spec 4.5
// gives once: score = qtf*log(p_s / (alpha*p_c)), initial score =
// |q|*log(alpha). DirichletPrior and JelinekMercer are thin constructors
// over the same type so the shared arithmetic is written once.
type languageModelRanker struct {
	kind languageModelKind
	mu   float64 // Dirichlet-prior pseudo-count
	lmda float64 // Jelinek-Mercer interpolation weight
}

// NewDirichletPrior returns the default LM ranker (spec 4.5).
func NewDirichletPrior(mu float64) *languageModelRanker {
	return &languageModelRanker{kind: dirichletPrior, mu: mu}
}

// NewJelinekMercer returns the Jelinek-Mercer-smoothed LM ranker.
func NewJelinekMercer(lambda float64) *languageModelRanker {
	return &languageModelRanker{kind: jelinekMercer, lmda: lambda}
}

func (r *languageModelRanker) Name() string {
	if r.kind == jelinekMercer {
		return "jelinek-mercer"
	}
	return "dirichlet-prior"
}

// backgroundProb is p_c(w), the corpus-wide unigram probability.
func backgroundProb(sd ScoreData) float64 {
	if sd.TotalTerms == 0 {
		return 0
	}
	return float64(sd.CorpusTermCount) / float64(sd.TotalTerms)
}

// docConstant is alpha, the smoothing-method-specific per-document
// constant (spec 4.5's doc_constant(doc)).
func (r *languageModelRanker) docConstant(docSize uint64) float64 {
	dl := float64(docSize)
	switch r.kind {
	case jelinekMercer:
		return r.lmda
	default: // dirichletPrior
		return r.mu / (dl + r.mu)
	}
}

// smoothedProb is p_s, the smoothed term|doc probability.
func (r *languageModelRanker) smoothedProb(sd ScoreData, pc float64) float64 {
	dl := float64(sd.DocSize)
	tf := float64(sd.DocTermCount)
	switch r.kind {
	case jelinekMercer:
		return (1-r.lmda)*(tf/dl) + r.lmda*pc
	default: // dirichletPrior
		return (tf + r.mu*pc) / (dl + r.mu)
	}
}

func (r *languageModelRanker) InitialScore(queryLength float64, docSize uint64) float64 {
	alpha := r.docConstant(docSize)
	if alpha <= 0 {
		return 0
	}
	return queryLength * math.Log(alpha)
}

func (r *languageModelRanker) ScoreOne(sd ScoreData) float64 {
	pc := backgroundProb(sd)
	if pc <= 0 {
		return 0
	}
	alpha := r.docConstant(sd.DocSize)
	ps := r.smoothedProb(sd, pc)
	if ps <= 0 || alpha <= 0 {
		return 0
	}
	return sd.QueryTermWeight * math.Log(ps/(alpha*pc))
}
