// Package config loads the hierarchical config.toml document spec 6
// describes: sections for the index, ranker, CRF trainer, and sequence
// analyzer, each supplying method names and parameters.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/textkit/textkit/internal/errs"
)

// IndexConfig mirrors spec 4.2's build() parameters. Corpus names the
// corpus driver's input (spec 1's non-goal leaves the file layout to the
// caller): a directory of line-delimited, whitespace-tokenized documents,
// one per file.
type IndexConfig struct {
	Dir              string `toml:"dir"`
	Corpus           string `toml:"corpus"`
	ChunkBudgetBytes int64  `toml:"chunk-budget-bytes"`
	Compression      string `toml:"compression"` // "", "zstd", "lz4"
	Workers          int    `toml:"workers"`

	// CacheVariant/CacheCapacity select the postings cache (spec 4.4)
	// an opened/built index serves repeat lookups from: "splay"
	// (default), "lru", "no-evict", or "shard-by-hash".
	CacheVariant  string `toml:"cache-variant"`
	CacheCapacity int    `toml:"cache-capacity"`

	// LexiconBackend selects how the lexicon's primary_id -> byte_offset
	// mapping is persisted: "" / "flat" (default, lexicon.index) or
	// "sqlite" (lexicon.sqlite3).
	LexiconBackend string `toml:"lexicon-backend"`
}

// RankerConfig selects and parameterizes one ranker (spec 4.5).
type RankerConfig struct {
	Method string  `toml:"method"` // bm25 | pivoted-length | dirichlet-prior | jelinek-mercer | kl-divergence-prf
	K1     float64 `toml:"k1"`
	B      float64 `toml:"b"`
	K3     float64 `toml:"k3"`
	S      float64 `toml:"s"`
	Mu     float64 `toml:"mu"`      // Dirichlet-prior pseudo-count
	Lambda float64 `toml:"lambda"` // Jelinek-Mercer interpolation weight

	// KL-divergence PRF parameters.
	PRFAlpha    float64 `toml:"prf-alpha"`
	PRFLambda   float64 `toml:"prf-lambda"`
	PRFMaxTerms int     `toml:"prf-max-terms"`
	PRFTopK     int     `toml:"prf-top-k"`
	PRFMaxIters int     `toml:"prf-max-iters"`
	PRFDelta    float64 `toml:"prf-delta"`

	// IndexDir is the Inverted-kind index ranked against. ForwardIndexDir
	// additionally supplies per-document term vectors for kl-divergence-prf.
	IndexDir        string `toml:"index-dir"`
	ForwardIndexDir string `toml:"forward-index-dir"`
	TopK            int    `toml:"top-k"`
}

// CRFConfig mirrors spec 4.6's train() params. TrainData/TestData name
// tagged corpora in the "word/TAG word/TAG" line format used by train/test;
// TagData names an untagged, whitespace-tokenized corpus for tag.
type CRFConfig struct {
	C2                 float64 `toml:"c2"`
	MaxIters           int     `toml:"max-iters"`
	Period             int     `toml:"period"`
	Delta              float64 `toml:"delta"`
	CalibrationSamples int     `toml:"calibration-samples"`
	CalibrationTrials  int     `toml:"calibration-trials"`
	CalibrationEta     float64 `toml:"calibration-eta"`
	CalibrationRate    float64 `toml:"calibration-rate"`
	ModelDir           string  `toml:"model-dir"`
	TrainData          string  `toml:"train-data"`
	TestData           string  `toml:"test-data"`
	TagData            string  `toml:"tag-data"`
}

// SequenceConfig configures the sequence analyzer's observation
// functions (spec 4.7); Features names the built-in observation
// functions to enable.
type SequenceConfig struct {
	Features []string `toml:"features"`
}

// Config is the full document read from config.toml.
type Config struct {
	Index    IndexConfig    `toml:"index"`
	Ranker   RankerConfig   `toml:"ranker"`
	CRF      CRFConfig      `toml:"crf"`
	Sequence SequenceConfig `toml:"sequence"`
}

// Load parses path as TOML into a Config, failing with InvalidConfig on
// a malformed document (spec 7).
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", errs.ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks parameter ranges spec 4.5/7 name explicitly
// (BM25's k1/b/k3 and pivoted-length's s); the PRF parameters are not
// range-checked here. Validation is best-effort: zero
// values for unset sections are accepted so a config may supply only
// the section relevant to the command being run.
func (c *Config) Validate() error {
	if c.Ranker.Method == "bm25" {
		if c.Ranker.K1 < 0 {
			return fmt.Errorf("%w: ranker.k1 must be >= 0", errs.ErrInvalidConfig)
		}
		if c.Ranker.K3 < 0 {
			return fmt.Errorf("%w: ranker.k3 must be >= 0", errs.ErrInvalidConfig)
		}
		if c.Ranker.B < 0 || c.Ranker.B > 1 {
			return fmt.Errorf("%w: ranker.b must be in [0,1]", errs.ErrInvalidConfig)
		}
	}
	if c.Ranker.Method == "pivoted-length" && (c.Ranker.S < 0 || c.Ranker.S > 1) {
		return fmt.Errorf("%w: ranker.s must be in [0,1]", errs.ErrInvalidConfig)
	}
	return nil
}
