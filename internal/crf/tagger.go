package crf

import "github.com/textkit/textkit/internal/seqanalyze"

// Tagger applies a fixed Model to sequences via Viterbi decoding, filling
// in each observation's Label (and Tag, resolved from Model.LabelTags)
// in place (spec 4.6 "Tagging", grounded on
// original_source/src/sequence/crf/tagger.cpp).
type Tagger struct {
	scorer *ViterbiScorer
}

// NewTagger returns a Tagger for model.
func NewTagger(model *Model) *Tagger {
	return &Tagger{scorer: NewViterbiScorer(model)}
}

// Tag decodes seq in place: every observation's Label and Tag fields are
// set to the best Viterbi path, and the decoded tags are also returned
// for convenience.
func (tg *Tagger) Tag(seq seqanalyze.Sequence) []string {
	path := tg.scorer.Viterbi(seq).BestPath()
	tags := make([]string, len(path))
	for t, lbl := range path {
		seq[t].Label = uint64(lbl)
		tag := ""
		if lbl >= 0 && lbl < len(tg.scorer.model.LabelTags) {
			tag = tg.scorer.model.LabelTags[lbl]
		}
		seq[t].Tag = tag
		seq[t].HasTag = true
		tags[t] = tag
	}
	return tags
}
