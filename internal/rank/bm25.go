package rank

import (
	"fmt"
	"math"

	"github.com/textkit/textkit/internal/errs"
)

// BM25 implements Okapi BM25 (spec 4.5).
type BM25 struct {
	K1 float64
	B  float64
	K3 float64
}

// NewBM25 validates k1>=0, b in [0,1], k3>=0 (spec 4.5's named
// parameter-validation errors) before returning a usable ranker.
func NewBM25(k1, b, k3 float64) (*BM25, error) {
	if k1 < 0 {
		return nil, fmt.Errorf("%w: bm25 k1 must be >= 0, got %v", errs.ErrInvalidConfig, k1)
	}
	if k3 < 0 {
		return nil, fmt.Errorf("%w: bm25 k3 must be >= 0, got %v", errs.ErrInvalidConfig, k3)
	}
	if b < 0 || b > 1 {
		return nil, fmt.Errorf("%w: bm25 b must be in [0,1], got %v", errs.ErrInvalidConfig, b)
	}
	return &BM25{K1: k1, B: b, K3: k3}, nil
}

func (r *BM25) Name() string { return "bm25" }

func (r *BM25) InitialScore(queryLength float64, docSize uint64) float64 { return 0 }

func (r *BM25) ScoreOne(sd ScoreData) float64 {
	if sd.DocTermCount == 0 {
		return 0
	}
	n := float64(sd.NumDocs)
	df := float64(sd.DocCount)
	tf := float64(sd.DocTermCount)
	qtf := sd.QueryTermWeight
	dl := float64(sd.DocSize)

	idf := math.Log(1 + (n-df+0.5)/(df+0.5))
	tfNorm := (r.K1 + 1) * tf / (r.K1*((1-r.B)+r.B*dl/sd.AvgDL) + tf)
	qtfNorm := (r.K3 + 1) * qtf / (r.K3 + qtf)

	return idf * tfNorm * qtfNorm
}
