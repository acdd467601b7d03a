package crf

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/textkit/textkit/internal/errs"
	"github.com/textkit/textkit/internal/seqanalyze"
)

// Parameters configures Trainer.Train (spec 4.6's train() params).
type Parameters struct {
	C2                 float64 // L2 regularization strength; Lambda = 2*C2/|examples|
	MaxIters           uint64
	Period             uint64
	Delta              float64
	CalibrationSamples uint64
	CalibrationTrials  uint64
	CalibrationEta     float64
	CalibrationRate    float64

	// lambda and t0 are derived during Train (spec 4.6 step 1/2) and are
	// not set by callers.
	lambda float64
	t0     float64
}

// Trainer drives regularized SGD training of a Model (spec 4.6). Rng is
// an explicit dependency per spec 9's "mutable singletons -> explicit
// context structs" redesign flag: no package-level PRNG.
type Trainer struct {
	Model *Model
	Rng   *rand.Rand
	Log   zerolog.Logger
}

// NewTrainer returns a Trainer for model using rng for shuffling.
func NewTrainer(model *Model, rng *rand.Rand, log zerolog.Logger) *Trainer {
	return &Trainer{Model: model, Rng: rng, Log: log}
}

// Train fits the model to examples (already run through a sequence
// analyzer, so every observation carries Features and Label), returning
// the final loss. Errors with NumericNonFinite if the loss diverges
// (spec 7: "indicates a learning-rate explosion").
func (t *Trainer) Train(params Parameters, examples []seqanalyze.Sequence, numFeatures, numLabels int) (float64, error) {
	t.Model.Initialize(examples, numFeatures, numLabels)

	params.lambda = 2.0 * params.C2 / float64(len(examples))

	indices := make([]int, len(examples))
	for i := range indices {
		indices[i] = i
	}
	t.Rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

	var err error
	params.t0, err = t.calibrate(params, indices, examples)
	if err != nil {
		return 0, err
	}

	scorer := NewScorer()
	oldLoss := make([]float64, params.Period)
	var loss float64
	for iter := uint64(1); iter <= params.MaxIters; iter++ {
		t.Rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

		loss, err = t.epoch(params, iter-1, indices, examples, scorer)
		if err != nil {
			return 0, err
		}
		if t.Model.Scale < 1e-9 {
			t.Model.Rescale()
		}
		l2 := t.Model.L2Norm()
		loss += 0.5 * l2 * params.lambda * float64(len(examples))

		if !isFinite(loss) {
			return 0, fmt.Errorf("%w: epoch %d loss=%v", errs.ErrNumericNonFinite, iter, loss)
		}

		t.Log.Info().Uint64("epoch", iter).Float64("loss", loss).Float64("l2norm", math.Sqrt(l2)).Msg("crf training epoch")

		if iter > params.Period {
			delta := (oldLoss[(iter-1)%params.Period] - loss) / loss
			if iter%params.Period == 0 && delta < params.Delta {
				t.Log.Info().Float64("improvement", delta).Msg("crf training converged")
				t.Model.Rescale()
				return loss, nil
			}
		}
		oldLoss[(iter-1)%params.Period] = loss
	}
	t.Model.Rescale()
	return loss, nil
}

// calibrate picks a learning rate by trying calibration_trials candidates
// around calibration_eta, first raising the rate and then (once a
// candidate makes the loss worse) lowering it, keeping whichever rate
// minimized the subset loss (spec 4.6 step 1, SUPPLEMENTED from
// original_source/src/sequence/crf/crf.cpp's two-phase calibrate()).
func (t *Trainer) calibrate(params Parameters, indices []int, examples []seqanalyze.Sequence) (float64, error) {
	numSamples := params.CalibrationSamples
	if numSamples > uint64(len(indices)) {
		numSamples = uint64(len(indices))
	}
	samples := indices[:numSamples]

	scorer := NewScorer()
	initialLoss := t.subsetLoss(samples, examples, scorer)

	eta := params.CalibrationEta
	bestEta := eta
	bestLoss := initialLoss
	increase := true

	for trial := uint64(0); trial < params.CalibrationTrials; {
		t.Model.Reset()
		trialParams := params
		trialParams.t0 = 1.0 / (params.lambda * eta)

		loss, err := t.epoch(trialParams, 0, samples, examples, scorer)
		if err != nil {
			return 0, err
		}
		loss += 0.5 * t.Model.L2Norm() * params.lambda * float64(len(examples))

		if isFinite(loss) && loss < initialLoss {
			trial++
			if loss < bestLoss {
				bestEta = eta
				bestLoss = loss
			}
			if increase {
				eta *= params.CalibrationRate
			} else {
				eta /= params.CalibrationRate
			}
		} else if increase {
			increase = false
			eta = params.CalibrationEta / params.CalibrationRate
		} else {
			eta /= params.CalibrationRate
		}
	}

	t.Log.Info().Float64("eta", bestEta).Msg("crf calibration picked learning rate")
	t.Model.Reset()
	return 1.0 / (params.lambda * bestEta), nil
}

func (t *Trainer) subsetLoss(indices []int, examples []seqanalyze.Sequence, scorer *Scorer) float64 {
	var total float64
	for _, idx := range indices {
		seq := examples[idx]
		scorer.Score(t.Model, seq)
		scorer.Forward()
		total += scorer.Loss(seq)
	}
	return total
}

func (t *Trainer) epoch(params Parameters, iterOffset uint64, indices []int, examples []seqanalyze.Sequence, scorer *Scorer) (float64, error) {
	var sumLoss float64
	for i, idx := range indices {
		loss := t.iteration(params, iterOffset*uint64(len(indices))+uint64(i), examples[idx], scorer)
		if !isFinite(loss) {
			return 0, fmt.Errorf("%w: non-finite per-example loss", errs.ErrNumericNonFinite)
		}
		sumLoss += loss
	}
	return sumLoss, nil
}

// iteration runs one SGD update for one example: compute scores and
// marginals, then add the gold (observed) expectation and subtract the
// model expectation, both scaled by the scaling-trick gain (spec 4.6
// step 2).
func (t *Trainer) iteration(params Parameters, step uint64, seq seqanalyze.Sequence, scorer *Scorer) float64 {
	lr := 1 / (params.lambda * (params.t0 + float64(step)))
	t.Model.Scale *= 1 - params.lambda*lr
	gain := lr / t.Model.Scale

	scorer.Score(t.Model, seq)
	scorer.Marginals()

	t.gradientObservedExpectation(seq, gain)
	t.gradientModelExpectation(seq, -gain, scorer)

	return scorer.Loss(seq)
}

// gradientObservedExpectation adds +gain*weight to every crf_feature_id
// that fired under the gold labeling (spec 4.6: "observed expectations").
func (t *Trainer) gradientObservedExpectation(seq seqanalyze.Sequence, gain float64) {
	hasPrev := false
	var prev int
	for obs := range seq {
		lbl := int(seq[obs].Label)
		for _, feat := range seq[obs].Features {
			if feat.ID >= uint64(t.Model.NumFeatures()) {
				continue
			}
			r := t.Model.ObsRange(feat.ID)
			for idx := r.Start; idx < r.End; idx++ {
				if int(t.Model.Observations[idx]) == lbl {
					t.Model.ObservationWeights[idx] += gain * feat.Weight
					break
				}
			}
		}
		if hasPrev {
			r := t.Model.TransRange(uint64(prev))
			for idx := r.Start; idx < r.End; idx++ {
				if int(t.Model.Transitions[idx]) == lbl {
					t.Model.TransitionWeights[idx] += gain
					break
				}
			}
		}
		prev = lbl
		hasPrev = true
	}
}

// gradientModelExpectation adds gain*weight*marginal to every
// crf_feature_id that can fire at each position, weighted by the model's
// current belief in that label (spec 4.6: "model expectations"). gain is
// expected to be negative here (a subtraction).
func (t *Trainer) gradientModelExpectation(seq seqanalyze.Sequence, gain float64, scorer *Scorer) {
	for ti := range seq {
		for _, feat := range seq[ti].Features {
			if feat.ID >= uint64(t.Model.NumFeatures()) {
				continue
			}
			r := t.Model.ObsRange(feat.ID)
			for idx := r.Start; idx < r.End; idx++ {
				lbl := int(t.Model.Observations[idx])
				t.Model.ObservationWeights[idx] += gain * feat.Weight * scorer.StateMarginal(ti, lbl)
			}
		}
	}

	for from := 0; from < t.Model.NumLabels; from++ {
		r := t.Model.TransRange(uint64(from))
		for idx := r.Start; idx < r.End; idx++ {
			to := int(t.Model.Transitions[idx])
			t.Model.TransitionWeights[idx] += gain * scorer.TransMarginal(from, to)
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
