// Package seqanalyze implements the sequence analyzer (spec 4.7): the
// feature_id/label_id mapping and the observation-function machinery that
// turns a sequence of opaque observation symbols into the sparse
// feature_id->weight vectors the CRF trains and tags on.
package seqanalyze

// Feature is a sparse (feature_id, weight) pair attached to one
// observation. A sequence of Features is sorted and de-duplicated by
// feature_id before being stored (spec 4.7's collector contract).
type Feature struct {
	ID     uint64
	Weight float64
}

// Observation is one position in a Sequence: a surface symbol, an optional
// gold tag (surface form; resolved to a label_id by Analyze), and the
// sparse feature vector the analyzer populates (spec 3 "sequence").
type Observation struct {
	Symbol   string
	Tag      string // gold tag surface form; empty for untagged (inference) observations
	HasTag   bool
	Label    uint64 // populated by Analyze when HasTag is true
	Features []Feature
}

// Sequence is an ordered list of Observations (spec 3).
type Sequence []Observation

// NewTagged builds a Sequence from parallel symbol/tag slices, the shape a
// treebank-derived training example arrives in. Tagging-time callers
// instead build an untagged Sequence directly from a token stream, via
// NewUntagged.
func NewTagged(symbols, tags []string) Sequence {
	seq := make(Sequence, len(symbols))
	for i, sym := range symbols {
		seq[i] = Observation{Symbol: sym}
		if i < len(tags) {
			seq[i].Tag = tags[i]
			seq[i].HasTag = true
		}
	}
	return seq
}

// NewUntagged builds a Sequence with no gold labels, for tagging-time use.
func NewUntagged(symbols []string) Sequence {
	seq := make(Sequence, len(symbols))
	for i, sym := range symbols {
		seq[i] = Observation{Symbol: sym}
	}
	return seq
}
