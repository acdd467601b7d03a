package crf

import (
	"path/filepath"

	"github.com/textkit/textkit/internal/seqanalyze"
)

// featureMappingFile lives in the same model directory as the six weight
// vectors and label.mapping (spec 6: "label.mapping, feature.mapping --
// text, one pair per line"), even though the feature_id mapping's
// authoritative owner during training is the sequence analyzer, not the
// CRF itself (spec 3).
const featureMappingFile = "feature.mapping"

// SaveBundle persists model and the feature/label mappings analyzer owns
// into one self-sufficient model directory, so a later Tag/Test run needs
// only this directory and not the original training-time analyzer.
func SaveBundle(dir string, model *Model, analyzer *seqanalyze.Analyzer) error {
	model.LabelTags = make([]string, analyzer.NumLabels())
	for id := range model.LabelTags {
		tag, _ := analyzer.Tag(uint64(id))
		model.LabelTags[id] = tag
	}
	if err := model.Save(dir); err != nil {
		return err
	}
	return analyzer.Save(filepath.Join(dir, featureMappingFile), filepath.Join(dir, fileLabels))
}

// LoadBundle restores a Model and a const-mode-ready Analyzer from a
// directory written by SaveBundle.
func LoadBundle(dir string) (*Model, *seqanalyze.Analyzer, error) {
	model, err := Load(dir)
	if err != nil {
		return nil, nil, err
	}
	analyzer := seqanalyze.New()
	if err := analyzer.Load(filepath.Join(dir, featureMappingFile), filepath.Join(dir, fileLabels)); err != nil {
		return nil, nil, err
	}
	return model, analyzer, nil
}
