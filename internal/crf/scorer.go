package crf

import (
	"math"

	"github.com/textkit/textkit/internal/seqanalyze"
)

// matrix is a dense time/label (or label/label) table, mirroring the
// original's double_matrix but flattened for locality.
type matrix struct {
	rows, cols int
	data       []float64
}

func newMatrix(rows, cols int) matrix {
	return matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (m matrix) at(i, j int) float64     { return m.data[i*m.cols+j] }
func (m matrix) set(i, j int, v float64) { m.data[i*m.cols+j] = v }
func (m matrix) add(i, j int, v float64) { m.data[i*m.cols+j] += v }

// ForwardTrellis holds the forward algorithm's alpha table together with
// a per-column normalizer, used both to guard against underflow and to
// recover log Z(x) as -sum_t log(normalizer[t]) (spec 4.6).
type ForwardTrellis struct {
	alpha      matrix
	Normalizer []float64
}

func newForwardTrellis(steps, labels int) *ForwardTrellis {
	return &ForwardTrellis{alpha: newMatrix(steps, labels), Normalizer: make([]float64, steps)}
}

// Probability returns alpha(t, y).
func (f *ForwardTrellis) Probability(t, y int) float64 { return f.alpha.at(t, y) }

func (f *ForwardTrellis) setProbability(t, y int, v float64) { f.alpha.set(t, y, v) }

// normalize divides column t by its sum, recording the reciprocal scale
// so Loss can recover log Z(x) later.
func (f *ForwardTrellis) normalize(t int) {
	var sum float64
	for y := 0; y < f.alpha.cols; y++ {
		sum += f.alpha.at(t, y)
	}
	scale := 1.0
	if sum > 0 {
		scale = 1 / sum
	}
	f.Normalizer[t] = scale
	for y := 0; y < f.alpha.cols; y++ {
		f.alpha.set(t, y, f.alpha.at(t, y)*scale)
	}
}

// trellis holds the backward algorithm's beta table (no normalizer of its
// own: backward reuses the forward trellis's normalizers, per spec 4.6).
type trellis struct {
	beta matrix
}

func (t trellis) probability(i, y int) float64     { return t.beta.at(i, y) }
func (t trellis) setProbability(i, y int, v float64) { t.beta.set(i, y, v) }

// Scorer holds, for one fixed sequence under the current model, the
// state/transition score matrices (log domain and exponentiated), the
// forward/backward trellises, and the state/transition marginals (spec
// 4.6 "scorer").
type Scorer struct {
	state, stateExp matrix
	trans, transExp matrix

	fwd     *ForwardTrellis
	bwd     *trellis
	stateMg matrix
	transMg matrix

	numLabels int
}

// NewScorer returns an empty Scorer; call Score (or TransitionScores +
// StateScores) before using it.
func NewScorer() *Scorer { return &Scorer{} }

// Score computes both transition and state scores for seq under model,
// and drops any previously computed forward/backward trellises (spec
// 4.6); marginals are recomputed by the next Marginals call.
func (s *Scorer) Score(model *Model, seq seqanalyze.Sequence) {
	s.TransitionScores(model)
	s.StateScores(model, seq)
	s.fwd = nil
	s.bwd = nil
}

// TransitionScores computes trans(y',y) and its exponential. Transition
// weights do not depend on the sequence, so a caller tagging many
// sequences with one model (ViterbiScorer) need only call this once.
func (s *Scorer) TransitionScores(model *Model) {
	n := model.NumLabels
	s.numLabels = n
	s.trans = newMatrix(n, n)
	s.transExp = newMatrix(n, n)
	for from := 0; from < n; from++ {
		r := model.TransRange(uint64(from))
		for idx := r.Start; idx < r.End; idx++ {
			to := int(model.Transitions[idx])
			s.trans.set(from, to, model.TransWeight(idx)*model.Scale)
		}
		for to := 0; to < n; to++ {
			s.transExp.set(from, to, math.Exp(s.trans.at(from, to)))
		}
	}
}

// StateScores computes state(t,y) and its exponential for every position
// of seq.
func (s *Scorer) StateScores(model *Model, seq seqanalyze.Sequence) {
	n := model.NumLabels
	steps := len(seq)
	s.state = newMatrix(steps, n)
	s.stateExp = newMatrix(steps, n)
	for t := 0; t < steps; t++ {
		for _, feat := range seq[t].Features {
			if feat.ID >= uint64(model.NumFeatures()) {
				continue // unseen feature at inference time: silently ignored
			}
			r := model.ObsRange(feat.ID)
			value := model.Scale * feat.Weight
			for idx := r.Start; idx < r.End; idx++ {
				lbl := int(model.Observations[idx])
				s.state.add(t, lbl, model.ObsWeight(idx)*value)
			}
		}
		for y := 0; y < n; y++ {
			s.stateExp.set(t, y, math.Exp(s.state.at(t, y)))
		}
	}
}

// Forward computes the forward trellis (spec 4.6).
func (s *Scorer) Forward() {
	steps, n := s.stateExp.rows, s.stateExp.cols
	fwd := newForwardTrellis(steps, n)

	for y := 0; y < n; y++ {
		fwd.setProbability(0, y, s.stateExp.at(0, y))
	}
	fwd.normalize(0)

	for t := 1; t < steps; t++ {
		for y := 0; y < n; y++ {
			var sum float64
			for in := 0; in < n; in++ {
				sum += fwd.Probability(t-1, in) * s.transExp.at(in, y)
			}
			fwd.setProbability(t, y, s.stateExp.at(t, y)*sum)
		}
		fwd.normalize(t)
	}
	s.fwd = fwd
}

// Backward computes the backward trellis, computing Forward first if
// needed (spec 4.6).
func (s *Scorer) Backward() {
	if s.fwd == nil {
		s.Forward()
	}
	steps, n := s.stateExp.rows, s.stateExp.cols
	bwd := &trellis{beta: newMatrix(steps, n)}

	last := steps - 1
	for y := 0; y < n; y++ {
		bwd.setProbability(last, y, s.fwd.Normalizer[last])
	}

	for t := last; t > 0; t-- {
		for i := 0; i < n; i++ {
			var sum float64
			for j := 0; j < n; j++ {
				sum += bwd.probability(t, j) * s.stateExp.at(t, j) * s.transExp.at(i, j)
			}
			bwd.setProbability(t-1, i, s.fwd.Normalizer[t-1]*sum)
		}
	}
	s.bwd = bwd
}

// Marginals computes both state and transition marginals, computing the
// forward/backward trellises first if needed (spec 4.6).
func (s *Scorer) Marginals() {
	if s.fwd == nil {
		s.Forward()
	}
	if s.bwd == nil {
		s.Backward()
	}
	s.stateMarginals()
	s.transitionMarginals()
}

func (s *Scorer) stateMarginals() {
	steps, n := s.stateExp.rows, s.stateExp.cols
	s.stateMg = newMatrix(steps, n)
	for t := 0; t < steps; t++ {
		for y := 0; y < n; y++ {
			v := s.fwd.Probability(t, y) * s.bwd.probability(t, y) * (1.0 / s.fwd.Normalizer[t])
			s.stateMg.set(t, y, v)
		}
	}
}

func (s *Scorer) transitionMarginals() {
	n := s.numLabels
	s.transMg = newMatrix(n, n)
	steps := s.stateExp.rows
	for t := 0; t < steps-1; t++ {
		for from := 0; from < n; from++ {
			for to := 0; to < n; to++ {
				v := s.fwd.Probability(t, from) * s.transExp.at(from, to) *
					s.stateExp.at(t+1, to) * s.bwd.probability(t+1, to)
				s.transMg.add(from, to, v)
			}
		}
	}
}

// State returns the log-domain state score at (t, y).
func (s *Scorer) State(t, y int) float64 { return s.state.at(t, y) }

// StateExp returns exp(State(t, y)).
func (s *Scorer) StateExp(t, y int) float64 { return s.stateExp.at(t, y) }

// Trans returns the log-domain transition score from y' to y.
func (s *Scorer) Trans(from, to int) float64 { return s.trans.at(from, to) }

// TransExp returns exp(Trans(from, to)).
func (s *Scorer) TransExp(from, to int) float64 { return s.transExp.at(from, to) }

// StateMarginal returns gamma(t, y): P(y_t = y | x).
func (s *Scorer) StateMarginal(t, y int) float64 { return s.stateMg.at(t, y) }

// TransMarginal returns xi(y', y): P(y_{t-1}=y', y_t=y | x) summed over t.
func (s *Scorer) TransMarginal(from, to int) float64 { return s.transMg.at(from, to) }

// Loss returns -score(x,y) + log Z(x) for the gold labeling in seq, using
// the trellis computed by the most recent Forward/Marginals call (spec
// 4.6, spec 8 "CRF loss identity").
func (s *Scorer) Loss(seq seqanalyze.Sequence) float64 {
	var score, normalizer float64
	hasPrev := false
	var prev int
	for t := range seq {
		curr := int(seq[t].Label)
		score += s.State(t, curr)
		if hasPrev {
			score += s.Trans(prev, curr)
		}
		normalizer += math.Log(s.fwd.Normalizer[t])
		prev = curr
		hasPrev = true
	}
	return -score - normalizer
}
