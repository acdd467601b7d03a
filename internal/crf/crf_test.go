package crf

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/textkit/textkit/internal/errs"
	"github.com/textkit/textkit/internal/seqanalyze"
)

// corruptFirstByte flips the first byte of path, used to exercise the
// checksum-mismatch failure path in Load.
func corruptFirstByte(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	data[0] ^= 0xFF
	return os.WriteFile(path, data, 0o644)
}

// wordFeature is the simplest possible observation function: the word
// identity itself, matching spec 8 scenario 5 ("a single observation
// feature 'word=x_t'").
func wordFeature(seq seqanalyze.Sequence, t int, coll seqanalyze.Collector) {
	coll.Add("word="+seq[t].Symbol, 1)
}

func buildToyExample(t *testing.T) (*seqanalyze.Analyzer, []seqanalyze.Sequence) {
	a := seqanalyze.New()
	a.AddObservationFunc(wordFeature)

	seq := seqanalyze.NewTagged([]string{"a", "b", "a"}, []string{"Y", "N", "Y"})
	a.Analyze(seq)
	return a, []seqanalyze.Sequence{seq}
}

func TestToySequenceViterbiAfterTraining(t *testing.T) {
	a, examples := buildToyExample(t)

	model := NewModel()
	trainer := NewTrainer(model, rand.New(rand.NewSource(1)), zerolog.Nop())

	params := Parameters{
		C2:                 0.01,
		MaxIters:           50,
		Period:             5,
		Delta:              1e-5,
		CalibrationSamples: 1,
		CalibrationTrials:  3,
		CalibrationEta:     0.25,
		CalibrationRate:    2.0,
	}

	_, err := trainer.Train(params, examples, a.NumFeatures(), a.NumLabels())
	require.NoError(t, err)

	model.LabelTags = make([]string, a.NumLabels())
	for id := range model.LabelTags {
		tag, _ := a.Tag(uint64(id))
		model.LabelTags[id] = tag
	}

	tagger := NewTagger(model)
	seq := seqanalyze.NewTagged([]string{"a", "b", "a"}, nil)
	a.AnalyzeConst(seq)
	tags := tagger.Tag(seq)

	require.Equal(t, []string{"Y", "N", "Y"}, tags)
}

func TestSaveLoadBundleRoundTripAgreesWithOriginal(t *testing.T) {
	a, examples := buildToyExample(t)

	model := NewModel()
	trainer := NewTrainer(model, rand.New(rand.NewSource(2)), zerolog.Nop())
	params := Parameters{
		C2: 0.01, MaxIters: 20, Period: 5, Delta: 1e-5,
		CalibrationSamples: 1, CalibrationTrials: 2, CalibrationEta: 0.25, CalibrationRate: 2.0,
	}
	_, err := trainer.Train(params, examples, a.NumFeatures(), a.NumLabels())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, SaveBundle(dir, model, a))

	loadedModel, loadedAnalyzer, err := LoadBundle(dir)
	require.NoError(t, err)
	require.Equal(t, model.NumLabels, loadedModel.NumLabels)
	require.Equal(t, model.LabelTags, loadedModel.LabelTags)
	require.InDeltaSlice(t, model.ObservationWeights, loadedModel.ObservationWeights, 1e-12)
	require.InDeltaSlice(t, model.TransitionWeights, loadedModel.TransitionWeights, 1e-12)

	original := NewTagger(model)
	restored := NewTagger(loadedModel)

	seq1 := seqanalyze.NewTagged([]string{"a", "b", "a"}, nil)
	a.AnalyzeConst(seq1)
	seq2 := seqanalyze.NewTagged([]string{"a", "b", "a"}, nil)
	loadedAnalyzer.AnalyzeConst(seq2)

	require.Equal(t, original.Tag(seq1), restored.Tag(seq2))

	// Exercise the checksum-failure path: corrupting a weight file must
	// surface CorruptModel rather than silently loading garbage.
	require.NoError(t, corruptFirstByte(filepath.Join(dir, fileObsWeights)))
	_, _, err = LoadBundle(dir)
	var corrupt *errs.CorruptModel
	require.ErrorAs(t, err, &corrupt)
}

func TestForwardBackwardMarginalsSumToOne(t *testing.T) {
	a, examples := buildToyExample(t)
	model := NewModel()
	model.Initialize(examples, a.NumFeatures(), a.NumLabels())

	// give the model some arbitrary non-zero weights so marginals are
	// non-trivial, rather than testing only the all-zero initial model.
	for i := range model.ObservationWeights {
		model.ObservationWeights[i] = 0.3 * float64(i+1)
	}
	for i := range model.TransitionWeights {
		model.TransitionWeights[i] = -0.2 * float64(i+1)
	}

	scorer := NewScorer()
	seq := examples[0]
	scorer.Score(model, seq)
	scorer.Marginals()

	for tm := 0; tm < len(seq); tm++ {
		var sum float64
		for y := 0; y < model.NumLabels; y++ {
			sum += scorer.StateMarginal(tm, y)
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestLossIdentityNonNegative(t *testing.T) {
	a, examples := buildToyExample(t)
	model := NewModel()
	model.Initialize(examples, a.NumFeatures(), a.NumLabels())

	scorer := NewScorer()
	seq := examples[0]
	scorer.Score(model, seq)
	scorer.Forward()

	loss := scorer.Loss(seq)
	require.GreaterOrEqual(t, loss, -1e-9)
	require.False(t, math.IsNaN(loss))
}

func TestViterbiOptimality(t *testing.T) {
	a, examples := buildToyExample(t)
	model := NewModel()
	model.Initialize(examples, a.NumFeatures(), a.NumLabels())
	for i := range model.ObservationWeights {
		model.ObservationWeights[i] = 0.1 * float64(i+1)
	}
	for i := range model.TransitionWeights {
		model.TransitionWeights[i] = 0.05 * float64(i+1)
	}

	seq := examples[0]
	vs := NewViterbiScorer(model)
	trellis := vs.Viterbi(seq)
	path := trellis.BestPath()

	// brute-force the best path over all label assignments and confirm
	// the Viterbi score matches (spec 8: "Viterbi optimality").
	n := model.NumLabels
	best := math.Inf(-1)
	assign := make([]int, len(seq))
	var rec func(i int)
	scoreOf := func(assign []int) float64 {
		scorer := NewScorer()
		scorer.TransitionScores(model)
		scorer.StateScores(model, seq)
		var s float64
		for t := range assign {
			s += scorer.State(t, assign[t])
			if t > 0 {
				s += scorer.Trans(assign[t-1], assign[t])
			}
		}
		return s
	}
	rec = func(i int) {
		if i == len(seq) {
			if s := scoreOf(assign); s > best {
				best = s
			}
			return
		}
		for y := 0; y < n; y++ {
			assign[i] = y
			rec(i + 1)
		}
	}
	rec(0)

	require.InDelta(t, best, trellis.Probability(len(seq)-1, path[len(seq)-1]), 1e-9)
}
