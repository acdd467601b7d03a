package rank

import (
	"fmt"
	"math"

	"github.com/textkit/textkit/internal/errs"
)

// PivotedLength implements pivoted document length normalization
// (spec 4.5).
type PivotedLength struct {
	S float64
}

// NewPivotedLength validates s in [0,1].
func NewPivotedLength(s float64) (*PivotedLength, error) {
	if s < 0 || s > 1 {
		return nil, fmt.Errorf("%w: pivoted-length s must be in [0,1], got %v", errs.ErrInvalidConfig, s)
	}
	return &PivotedLength{S: s}, nil
}

func (r *PivotedLength) Name() string { return "pivoted-length" }

func (r *PivotedLength) InitialScore(queryLength float64, docSize uint64) float64 { return 0 }

func (r *PivotedLength) ScoreOne(sd ScoreData) float64 {
	if sd.DocTermCount == 0 {
		return 0
	}
	n := float64(sd.NumDocs)
	df := float64(sd.DocCount)
	tf := float64(sd.DocTermCount)
	qtf := sd.QueryTermWeight
	dl := float64(sd.DocSize)

	tfNorm := 1 + math.Log(1+math.Log(tf))
	norm := (1-r.S) + r.S*dl/sd.AvgDL
	idf := math.Log((n + 1) / (df + 0.5))

	return (tfNorm / norm) * qtf * idf
}
