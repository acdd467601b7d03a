package crf

import (
	"math"

	"github.com/textkit/textkit/internal/seqanalyze"
)

// ViterbiTrellis holds the max-score table and backpointers for the
// Viterbi algorithm (spec 4.6 "Tagging").
type ViterbiTrellis struct {
	score       matrix
	backpointer [][]int
}

func newViterbiTrellis(steps, labels int) *ViterbiTrellis {
	bp := make([][]int, steps)
	for i := range bp {
		bp[i] = make([]int, labels)
	}
	return &ViterbiTrellis{score: newMatrix(steps, labels), backpointer: bp}
}

// Probability returns V(t, y), the best log-domain score of any labeling
// of positions [0,t] ending in label y.
func (v *ViterbiTrellis) Probability(t, y int) float64 { return v.score.at(t, y) }

// BestPath recovers the optimal label sequence by walking the
// backpointers from the best final label.
func (v *ViterbiTrellis) BestPath() []int {
	steps := v.score.rows
	if steps == 0 {
		return nil
	}
	n := v.score.cols
	best, bestScore := 0, math.Inf(-1)
	for y := 0; y < n; y++ {
		if s := v.Probability(steps-1, y); s > bestScore {
			bestScore = s
			best = y
		}
	}
	path := make([]int, steps)
	path[steps-1] = best
	for t := steps - 1; t > 0; t-- {
		path[t-1] = v.backpointer[t][path[t]]
	}
	return path
}

// ViterbiScorer applies a fixed Model to sequences via the Viterbi
// algorithm, in the log domain (spec 4.6). It reuses one underlying
// Scorer and computes transition scores only once at construction, since
// transition weights never change across tagging calls for a fixed model
// (grounded on original_source/src/sequence/crf/viterbi_scorer.cpp).
type ViterbiScorer struct {
	model  *Model
	scorer *Scorer
}

// NewViterbiScorer returns a ViterbiScorer for model, precomputing its
// transition scores.
func NewViterbiScorer(model *Model) *ViterbiScorer {
	s := NewScorer()
	s.TransitionScores(model)
	return &ViterbiScorer{model: model, scorer: s}
}

// Viterbi computes the max-product (log-domain max-sum) trellis for seq:
// V(t,y) = state(t,y) + max_y' (V(t-1,y') + trans(y',y)).
func (v *ViterbiScorer) Viterbi(seq seqanalyze.Sequence) *ViterbiTrellis {
	v.scorer.StateScores(v.model, seq)
	n := v.model.NumLabels
	steps := len(seq)
	table := newViterbiTrellis(steps, n)

	for y := 0; y < n; y++ {
		table.score.set(0, y, v.scorer.State(0, y))
	}

	for t := 1; t < steps; t++ {
		for y := 0; y < n; y++ {
			maxScore := math.Inf(-1)
			maxFrom := 0
			for in := 0; in < n; in++ {
				score := table.Probability(t-1, in) + v.scorer.Trans(in, y)
				if score > maxScore {
					maxScore = score
					maxFrom = in
				}
			}
			table.score.set(t, y, maxScore+v.scorer.State(t, y))
			table.backpointer[t][y] = maxFrom
		}
	}
	return table
}
