package seqanalyze

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/textkit/textkit/internal/errs"
)

// ObservationFunc is a user-supplied feature function: given a sequence and
// a position t, it calls collector.Add for every feature that fires at t
// (spec 4.7). Observation functions may only look at symbols, never tags.
type ObservationFunc func(seq Sequence, t int, collect Collector)

// Collector is the interface an ObservationFunc uses to register features
// for one observation. The analyzer sorts and de-duplicates by feature_id
// before storing the result onto the observation (spec 4.7).
type Collector interface {
	Add(feature string, weight float64)
}

// Analyzer maintains the feature_id and label_id mappings and drives the
// registered ObservationFuncs over sequences (spec 4.7). It is the Go
// analogue of sequence_analyzer: analysis mutates the mapping in
// training mode and is read-only in const/inference mode.
type Analyzer struct {
	obsFns []ObservationFunc

	featureByStr map[string]uint64
	featureByID  []string

	labelByStr map[string]uint64
	labelByID  []string
}

// New returns an empty Analyzer with no observation functions registered.
func New() *Analyzer {
	return &Analyzer{
		featureByStr: make(map[string]uint64),
		labelByStr:   make(map[string]uint64),
	}
}

// AddObservationFunc registers fn to run over every position of every
// sequence passed to Analyze.
func (a *Analyzer) AddObservationFunc(fn ObservationFunc) {
	a.obsFns = append(a.obsFns, fn)
}

// NumFeatures returns the number of distinct feature_ids assigned so far.
func (a *Analyzer) NumFeatures() int { return len(a.featureByID) }

// NumLabels returns the number of distinct label_ids assigned so far.
func (a *Analyzer) NumLabels() int { return len(a.labelByID) }

// Tag returns the surface tag for a label_id.
func (a *Analyzer) Tag(label uint64) (string, bool) {
	if label >= uint64(len(a.labelByID)) {
		return "", false
	}
	return a.labelByID[label], true
}

// Label returns the label_id for tag, assigning a new one if unseen.
// Training-time (non-const) use only; see LabelConst for inference.
func (a *Analyzer) Label(tag string) uint64 {
	if id, ok := a.labelByStr[tag]; ok {
		return id
	}
	id := uint64(len(a.labelByID))
	a.labelByID = append(a.labelByID, tag)
	a.labelByStr[tag] = id
	return id
}

// LabelConst returns the label_id for tag and whether tag has been seen
// before; it never assigns a new id (spec 4.7 const mode).
func (a *Analyzer) LabelConst(tag string) (uint64, bool) {
	id, ok := a.labelByStr[tag]
	return id, ok
}

// Feature returns the feature_id for s, assigning a new one if unseen
// (training-time / non-const mode, spec 4.7).
func (a *Analyzer) Feature(s string) uint64 {
	if id, ok := a.featureByStr[s]; ok {
		return id
	}
	id := uint64(len(a.featureByID))
	a.featureByID = append(a.featureByID, s)
	a.featureByStr[s] = id
	return id
}

// FeatureConst returns the feature_id for s if it exists, or the
// one-past-the-end sentinel id otherwise (spec 4.7 const mode: unknown
// features are silently discarded by the caller checking the sentinel).
func (a *Analyzer) FeatureConst(s string) uint64 {
	if id, ok := a.featureByStr[s]; ok {
		return id
	}
	return uint64(len(a.featureByID))
}

// Analyze runs every registered ObservationFunc over seq, assigning new
// feature_ids and label_ids for previously unseen features/tags
// (training mode, spec 4.7).
func (a *Analyzer) Analyze(seq Sequence) {
	for t := range seq {
		a.analyzeOne(seq, t, true)
		if seq[t].HasTag {
			seq[t].Label = a.Label(seq[t].Tag)
		}
	}
}

// AnalyzeConst runs every registered ObservationFunc over seq, reusing
// existing feature_ids/label_ids and silently discarding unseen features
// (inference mode, spec 4.7).
func (a *Analyzer) AnalyzeConst(seq Sequence) {
	for t := range seq {
		a.analyzeOne(seq, t, false)
		if seq[t].HasTag {
			if id, ok := a.LabelConst(seq[t].Tag); ok {
				seq[t].Label = id
			}
		}
	}
}

func (a *Analyzer) analyzeOne(seq Sequence, t int, train bool) {
	c := &collector{analyzer: a, train: train}
	for _, fn := range a.obsFns {
		fn(seq, t, c)
	}
	sort.Slice(c.feats, func(i, j int) bool { return c.feats[i].ID < c.feats[j].ID })
	seq[t].Features = dedupe(c.feats)
}

// dedupe sums weights for repeated feature_ids, assuming feats is already
// sorted by ID.
func dedupe(feats []Feature) []Feature {
	if len(feats) == 0 {
		return feats
	}
	out := feats[:1]
	for _, f := range feats[1:] {
		last := &out[len(out)-1]
		if last.ID == f.ID {
			last.Weight += f.Weight
		} else {
			out = append(out, f)
		}
	}
	return out
}

// collector is the concrete Collector passed to ObservationFuncs.
type collector struct {
	analyzer *Analyzer
	train    bool
	feats    []Feature
}

func (c *collector) Add(feature string, weight float64) {
	var id uint64
	if c.train {
		id = c.analyzer.Feature(feature)
	} else {
		id = c.analyzer.FeatureConst(feature)
		if id == uint64(c.analyzer.NumFeatures()) {
			return // unseen feature at inference time: silently discarded
		}
	}
	c.feats = append(c.feats, Feature{ID: id, Weight: weight})
}

// Save persists the feature_id and label_id mappings as the text
// `feature.mapping`/`label.mapping` files spec 6 names (one `id string`
// pair per line, matching the CRF's other text mapping files).
func (a *Analyzer) Save(featurePath, labelPath string) error {
	if err := writeMappingFile(featurePath, a.featureByID); err != nil {
		return err
	}
	return writeMappingFile(labelPath, a.labelByID)
}

// Load restores the feature_id and label_id mappings previously written
// by Save.
func (a *Analyzer) Load(featurePath, labelPath string) error {
	feats, err := readMappingFile(featurePath)
	if err != nil {
		return err
	}
	labels, err := readMappingFile(labelPath)
	if err != nil {
		return err
	}
	a.featureByID = feats
	a.featureByStr = make(map[string]uint64, len(feats))
	for id, s := range feats {
		a.featureByStr[s] = uint64(id)
	}
	a.labelByID = labels
	a.labelByStr = make(map[string]uint64, len(labels))
	for id, s := range labels {
		a.labelByStr[s] = uint64(id)
	}
	return nil
}

func writeMappingFile(path string, byID []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing mapping %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for id, s := range byID {
		if _, err := fmt.Fprintf(w, "%d %s\n", id, s); err != nil {
			f.Close()
			return fmt.Errorf("writing mapping %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing mapping %s: %w", path, err)
	}
	return f.Close()
}

func readMappingFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping %s: %w", path, err)
	}
	defer f.Close()

	var byID []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		sp := strings.SplitN(line, " ", 2)
		if len(sp) != 2 {
			return nil, &errs.CorruptModel{Path: path, Reason: "malformed mapping line"}
		}
		id, err := strconv.Atoi(sp[0])
		if err != nil || id < 0 {
			return nil, &errs.CorruptModel{Path: path, Reason: "non-integer mapping id"}
		}
		for len(byID) <= id {
			byID = append(byID, "")
		}
		byID[id] = sp[1]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading mapping %s: %w", path, err)
	}
	return byID, nil
}
