package seqanalyze

import (
	"strconv"
	"strings"
	"unicode"
)

// DefaultPOSFeatures returns the observation functions wired up by
// NewDefaultPOSAnalyzer, exposed separately so SequenceConfig.Features
// (spec 6) can enable a subset by name.
var DefaultPOSFeatures = map[string]ObservationFunc{
	"word":      wordFeature,
	"prefix":    prefixFeatures,
	"suffix":    suffixFeatures,
	"shape":     shapeFeature,
	"neighbors": neighborFeatures,
	"bias":      biasFeature,
}

// NewDefaultPOSAnalyzer returns an Analyzer specialized for part-of-speech
// tagging with a predefined set of observation functions (spec 4.7's
// "default_pos_analyzer", per original_source/'s sequence_analyzer.h),
// mirroring the word-identity example given in that header's doc comment
// and the standard feature templates used for linear-chain POS tagging:
// current/previous/next word, word shape, fixed-length affixes, and a
// constant bias feature.
func NewDefaultPOSAnalyzer(features []string) *Analyzer {
	a := New()
	if len(features) == 0 {
		for _, fn := range DefaultPOSFeatures {
			a.AddObservationFunc(fn)
		}
		return a
	}
	for _, name := range features {
		if fn, ok := DefaultPOSFeatures[name]; ok {
			a.AddObservationFunc(fn)
		}
	}
	return a
}

// wordFeature is the feature function sketched in sequence_analyzer.h's
// doc comment: the surface word at t, verbatim.
func wordFeature(seq Sequence, t int, coll Collector) {
	coll.Add("w[t]="+seq[t].Symbol, 1)
}

// neighborFeatures fires the previous and next word as context features,
// a standard CRF POS-tagging template.
func neighborFeatures(seq Sequence, t int, coll Collector) {
	if t > 0 {
		coll.Add("w[t-1]="+seq[t-1].Symbol, 1)
	}
	if t+1 < len(seq) {
		coll.Add("w[t+1]="+seq[t+1].Symbol, 1)
	}
}

// prefixFeatures and suffixFeatures fire fixed-length affixes up to 3
// characters, a common substitute for morphological features when no
// lexicon is available.
func prefixFeatures(seq Sequence, t int, coll Collector) {
	w := seq[t].Symbol
	for n := 1; n <= 3 && n <= len(w); n++ {
		coll.Add("prefix"+strconv.Itoa(n)+"="+w[:n], 1)
	}
}

func suffixFeatures(seq Sequence, t int, coll Collector) {
	w := seq[t].Symbol
	for n := 1; n <= 3 && n <= len(w); n++ {
		coll.Add("suffix"+strconv.Itoa(n)+"="+w[len(w)-n:], 1)
	}
}

// shapeFeature maps the word to a coarse orthographic shape: each letter
// becomes X (upper) or x (lower), each digit becomes 'd', everything else
// is kept as-is, e.g. "McDonald's" -> "XxXxxxxx'x".
func shapeFeature(seq Sequence, t int, coll Collector) {
	var sb strings.Builder
	for _, r := range seq[t].Symbol {
		switch {
		case unicode.IsUpper(r):
			sb.WriteByte('X')
		case unicode.IsLower(r):
			sb.WriteByte('x')
		case unicode.IsDigit(r):
			sb.WriteByte('d')
		default:
			sb.WriteRune(r)
		}
	}
	coll.Add("shape="+sb.String(), 1)
}

// biasFeature fires unconditionally, letting the model learn a per-label
// prior independent of the observed symbol.
func biasFeature(seq Sequence, t int, coll Collector) {
	coll.Add("bias", 1)
}
