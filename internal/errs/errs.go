// Package errs defines the closed set of error kinds the core surfaces to
// callers, per the taxonomy in the indexing/CRF specification. Recoverable
// conditions (unknown term, unseen feature) are not represented here: they
// are handled by returning zero values, never by raising an error.
package errs

import (
	"errors"
	"strconv"
)

// ErrInvalidConfig indicates a missing required key or an out-of-range
// parameter (e.g. a BM25 b outside [0,1]).
var ErrInvalidConfig = errors.New("invalid config")

// ErrIndexAlreadyExists indicates build was called against a non-empty
// index directory.
var ErrIndexAlreadyExists = errors.New("index already exists")

// ErrNumericNonFinite indicates an infinite or NaN loss during CRF
// training, surfaced because it signals a learning-rate explosion.
var ErrNumericNonFinite = errors.New("non-finite loss during training")

// CorruptPostings indicates a postings record failed an on-disk invariant:
// a non-integer field, an odd field count, or non-monotonic doc ids.
type CorruptPostings struct {
	Offset int64
	Reason string
}

func (e *CorruptPostings) Error() string {
	return "corrupt postings record at offset " + strconv.FormatInt(e.Offset, 10) + ": " + e.Reason
}

func (e *CorruptPostings) Is(target error) bool {
	_, ok := target.(*CorruptPostings)
	return ok
}

// CorruptChunk indicates a chunk file violated the sorted-primary-key
// invariant a producer is required to uphold.
type CorruptChunk struct {
	Path   string
	Reason string
}

func (e *CorruptChunk) Error() string {
	return "corrupt chunk " + e.Path + ": " + e.Reason
}

func (e *CorruptChunk) Is(target error) bool {
	_, ok := target.(*CorruptChunk)
	return ok
}

// CorruptModel indicates a CRF model directory failed to load: a
// truncated vector file, a bad checksum, empty transition ranges, or a
// malformed label mapping.
type CorruptModel struct {
	Path   string
	Reason string
}

func (e *CorruptModel) Error() string {
	return "corrupt model at " + e.Path + ": " + e.Reason
}

func (e *CorruptModel) Is(target error) bool {
	_, ok := target.(*CorruptModel)
	return ok
}
