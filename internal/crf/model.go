// Package crf implements the linear-chain conditional random field (spec
// 4.6): parameter store, trellis-based scorer, regularized SGD trainer,
// and Viterbi tagger, grounded on the meta-toolkit's sequence/crf C++
// originals (original_source/src/sequence/crf/*.cpp).
package crf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/floats"

	"github.com/textkit/textkit/internal/diskvector"
	"github.com/textkit/textkit/internal/errs"
	"github.com/textkit/textkit/internal/seqanalyze"
)

// featureRange is a half-open [Start, End) range of crf_feature_ids, as
// returned by Model.ObsRange/TransRange (spec 3 "CRF parameter store").
type featureRange struct {
	Start, End uint64
}

// Model is the CRF's parameter store: two parallel weight arrays indexed
// by crf_feature_id, plus the range tables and target-label vectors that
// make "features that fire for this key" a contiguous range (spec 3).
//
// The stored weights are raw: their effective value is the stored value
// times Scale, and ObsWeight/TransWeight return the raw value, so every
// reader multiplies by Scale itself, per spec 9's explicit-scale-factor
// redesign. Internal code mutates the raw arrays directly and only
// rescales in bulk when Scale underflows or training finishes (the
// "scaling trick").
type Model struct {
	NumLabels int

	// ObservationRanges has length NumFeatures()+1; ObservationRanges[f]
	// is the start of feature f's crf_feature_id range into Observations/
	// ObservationWeights, and ObservationRanges[f+1] is its end.
	ObservationRanges  []uint64
	Observations       []uint64 // target label_id per crf_feature_id
	ObservationWeights []float64

	// TransitionRanges has length NumLabels+1, analogous to
	// ObservationRanges but keyed by source label_id.
	TransitionRanges  []uint64
	Transitions       []uint64 // target label_id per crf_feature_id
	TransitionWeights []float64

	// Scale is the implicit global multiplier the SGD scaling trick
	// applies to every weight (spec 4.6 step 2/4); 1 outside of an
	// in-progress training run.
	Scale float64

	// LabelTags is the label_id -> tag surface-form mapping, persisted
	// alongside the model so a loaded Model is self-sufficient for
	// tagging without the training-time sequence analyzer (spec 6: CRF
	// model directory includes label.mapping).
	LabelTags []string
}

// NewModel returns a zero-valued Model (Scale 1) ready for Initialize.
func NewModel() *Model {
	return &Model{Scale: 1}
}

// NumFeatures returns the number of distinct observation feature_ids the
// model was initialized with.
func (m *Model) NumFeatures() int {
	if len(m.ObservationRanges) == 0 {
		return 0
	}
	return len(m.ObservationRanges) - 1
}

// Initialize performs the one-time sizing pass spec 4.6 describes: a
// single scan of examples enumerates obs_feats[feature_id] and
// trans_feats[prev_label], then the weight/range/target arrays are sized
// and zero-filled.
func (m *Model) Initialize(examples []seqanalyze.Sequence, numFeatures, numLabels int) {
	obsFeats := make([]map[uint64]bool, numFeatures)
	transFeats := make([]map[uint64]bool, numLabels)

	for _, seq := range examples {
		hasPrev := false
		var prev uint64
		for t := range seq {
			lbl := seq[t].Label
			for _, f := range seq[t].Features {
				if obsFeats[f.ID] == nil {
					obsFeats[f.ID] = make(map[uint64]bool)
				}
				obsFeats[f.ID][lbl] = true
			}
			if hasPrev {
				if transFeats[prev] == nil {
					transFeats[prev] = make(map[uint64]bool)
				}
				transFeats[prev][lbl] = true
			}
			prev = lbl
			hasPrev = true
		}
	}

	m.NumLabels = numLabels
	m.Scale = 1

	m.ObservationRanges = make([]uint64, numFeatures+1)
	var obsSize uint64
	for f := 0; f < numFeatures; f++ {
		m.ObservationRanges[f] = obsSize
		obsSize += uint64(len(obsFeats[f]))
	}
	m.ObservationRanges[numFeatures] = obsSize

	m.Observations = make([]uint64, obsSize)
	m.ObservationWeights = make([]float64, obsSize)
	idx := uint64(0)
	for f := 0; f < numFeatures; f++ {
		for _, lbl := range sortedKeys(obsFeats[f]) {
			m.Observations[idx] = lbl
			idx++
		}
	}

	m.TransitionRanges = make([]uint64, numLabels+1)
	var transSize uint64
	for l := 0; l < numLabels; l++ {
		m.TransitionRanges[l] = transSize
		transSize += uint64(len(transFeats[l]))
	}
	m.TransitionRanges[numLabels] = transSize

	m.Transitions = make([]uint64, transSize)
	m.TransitionWeights = make([]float64, transSize)
	idx = 0
	for l := 0; l < numLabels; l++ {
		for _, lbl := range sortedKeys(transFeats[l]) {
			m.Transitions[idx] = lbl
			idx++
		}
	}
}

func sortedKeys(set map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset zeroes both weight arrays and resets Scale to 1, used before each
// calibration trial (spec 4.6 step 1).
func (m *Model) Reset() {
	for i := range m.ObservationWeights {
		m.ObservationWeights[i] = 0
	}
	for i := range m.TransitionWeights {
		m.TransitionWeights[i] = 0
	}
	m.Scale = 1
}

// ObsRange returns the crf_feature_id range that fired for observation
// feature fid.
func (m *Model) ObsRange(fid uint64) featureRange {
	return featureRange{m.ObservationRanges[fid], m.ObservationRanges[fid+1]}
}

// TransRange returns the crf_feature_id range for transitions out of
// label lbl.
func (m *Model) TransRange(lbl uint64) featureRange {
	return featureRange{m.TransitionRanges[lbl], m.TransitionRanges[lbl+1]}
}

// ObsWeight returns the raw (unscaled) weight at crf_feature_id idx.
// Callers scoring a sequence multiply by Scale themselves (see Scorer),
// matching the original's scale_ multiplication at each use site.
func (m *Model) ObsWeight(idx uint64) float64 { return m.ObservationWeights[idx] }

// TransWeight returns the raw (unscaled) weight at crf_feature_id idx.
func (m *Model) TransWeight(idx uint64) float64 { return m.TransitionWeights[idx] }

// L2Norm returns the scaled squared L2 norm of both weight arrays (spec
// 4.6's "corpus L2 norm contribution"), via gonum's dot-product helper.
func (m *Model) L2Norm() float64 {
	norm := floats.Dot(m.ObservationWeights, m.ObservationWeights) +
		floats.Dot(m.TransitionWeights, m.TransitionWeights)
	return norm * m.Scale * m.Scale
}

// Rescale multiplies every weight by Scale and resets Scale to 1 (spec
// 4.6 step 4, spec 9's explicit rescale() API). Called automatically when
// Scale underflows during training and once more before Save.
func (m *Model) Rescale() {
	if m.Scale == 1 {
		return
	}
	floats.Scale(m.Scale, m.ObservationWeights)
	floats.Scale(m.Scale, m.TransitionWeights)
	m.Scale = 1
}

// model directory file names (spec 6).
const (
	fileObsRanges    = "observation_ranges.vector"
	fileObs          = "observations.vector"
	fileObsWeights   = "observation_weights.vector"
	fileTransRanges  = "transition_ranges.vector"
	fileTrans        = "transitions.vector"
	fileTransWeights = "transition_weights.vector"
	fileLabels       = "label.mapping"
	fileChecksums    = "checksums.manifest"
)

// Save persists the model directory spec 6 describes: six flat binary
// vectors plus label.mapping. Weights are always fully rescaled before
// being written, so a loaded Model's Scale is always 1. Each vector file
// is checksummed with xxhash64 so CorruptModel is raised on load for a
// truncated or corrupted file, rather than an out-of-range panic deep in
// the scorer.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating model directory %s: %w", dir, err)
	}
	m.Rescale()

	sums := make(map[string]uint64, 6)
	writeU := func(name string, vec []uint64) error {
		path := filepath.Join(dir, name)
		if err := diskvector.WriteUint64(path, vec); err != nil {
			return err
		}
		sums[name] = checksumFile(path)
		return nil
	}
	writeF := func(name string, vec []float64) error {
		path := filepath.Join(dir, name)
		if err := diskvector.WriteFloat64(path, vec); err != nil {
			return err
		}
		sums[name] = checksumFile(path)
		return nil
	}

	if err := writeU(fileObsRanges, m.ObservationRanges); err != nil {
		return err
	}
	if err := writeU(fileObs, m.Observations); err != nil {
		return err
	}
	if err := writeF(fileObsWeights, m.ObservationWeights); err != nil {
		return err
	}
	if err := writeU(fileTransRanges, m.TransitionRanges); err != nil {
		return err
	}
	if err := writeU(fileTrans, m.Transitions); err != nil {
		return err
	}
	if err := writeF(fileTransWeights, m.TransitionWeights); err != nil {
		return err
	}

	if err := writeLabelMapping(filepath.Join(dir, fileLabels), m.LabelTags); err != nil {
		return err
	}

	return writeChecksums(filepath.Join(dir, fileChecksums), sums)
}

// Load restores a Model previously written by Save, verifying each
// vector file's xxhash64 checksum.
func Load(dir string) (*Model, error) {
	sums, err := readChecksums(filepath.Join(dir, fileChecksums))
	if err != nil {
		return nil, err
	}
	for _, name := range []string{fileObsRanges, fileObs, fileObsWeights, fileTransRanges, fileTrans, fileTransWeights} {
		path := filepath.Join(dir, name)
		if want, ok := sums[name]; ok && checksumFile(path) != want {
			return nil, &errs.CorruptModel{Path: path, Reason: "xxhash64 checksum mismatch"}
		}
	}

	m := &Model{Scale: 1}
	if m.ObservationRanges, err = diskvector.ReadUint64(filepath.Join(dir, fileObsRanges)); err != nil {
		return nil, err
	}
	if m.Observations, err = diskvector.ReadUint64(filepath.Join(dir, fileObs)); err != nil {
		return nil, err
	}
	if m.ObservationWeights, err = diskvector.ReadFloat64(filepath.Join(dir, fileObsWeights)); err != nil {
		return nil, err
	}
	if m.TransitionRanges, err = diskvector.ReadUint64(filepath.Join(dir, fileTransRanges)); err != nil {
		return nil, err
	}
	if m.Transitions, err = diskvector.ReadUint64(filepath.Join(dir, fileTrans)); err != nil {
		return nil, err
	}
	if m.TransitionWeights, err = diskvector.ReadFloat64(filepath.Join(dir, fileTransWeights)); err != nil {
		return nil, err
	}
	if len(m.TransitionRanges) == 0 {
		return nil, &errs.CorruptModel{Path: dir, Reason: "empty transition ranges"}
	}
	m.NumLabels = len(m.TransitionRanges) - 1

	labels, err := readLabelMapping(filepath.Join(dir, fileLabels))
	if err != nil {
		return nil, err
	}
	m.LabelTags = labels

	return m, nil
}

func checksumFile(path string) uint64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	h := xxhash.New()
	_, _ = io.Copy(h, f)
	return h.Sum64()
}

func writeChecksums(path string, sums map[string]uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing checksums: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, name := range []string{fileObsRanges, fileObs, fileObsWeights, fileTransRanges, fileTrans, fileTransWeights} {
		if _, err := fmt.Fprintf(w, "%s %d\n", name, sums[name]); err != nil {
			f.Close()
			return fmt.Errorf("writing checksums: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing checksums: %w", err)
	}
	return f.Close()
}

func readChecksums(path string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening checksums: %w", err)
	}
	defer f.Close()

	sums := make(map[string]uint64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		sum, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		sums[fields[0]] = sum
	}
	return sums, sc.Err()
}

func writeLabelMapping(path string, tags []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing label mapping: %w", err)
	}
	w := bufio.NewWriter(f)
	for id, tag := range tags {
		if _, err := fmt.Fprintf(w, "%d %s\n", id, tag); err != nil {
			f.Close()
			return fmt.Errorf("writing label mapping: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing label mapping: %w", err)
	}
	return f.Close()
}

func readLabelMapping(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening label mapping: %w", err)
	}
	defer f.Close()

	var tags []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		sp := strings.SplitN(line, " ", 2)
		if len(sp) != 2 {
			return nil, &errs.CorruptModel{Path: path, Reason: "malformed label mapping line"}
		}
		id, err := strconv.Atoi(sp[0])
		if err != nil || id < 0 {
			return nil, &errs.CorruptModel{Path: path, Reason: "non-integer label id"}
		}
		for len(tags) <= id {
			tags = append(tags, "")
		}
		tags[id] = sp[1]
	}
	return tags, sc.Err()
}
