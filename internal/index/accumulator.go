// Package index implements the on-disk inverted/forward index (spec 4.2):
// an in-memory accumulator that spills sorted chunks, merged by
// internal/chunkmerge into one postings file plus lexicon, exposed
// read-only via open() and postings() after an mmap on the result.
package index

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/textkit/textkit/internal/postings"
)

// entrySize approximates sizeof(entry) for the chunk-spill byte-budget
// policy (spec 4.2): one secondary_id/count pair, both uint64.
const entrySize = 16

// accumulator maps primary_id -> postings.Record while indexing, spilling
// to a sorted chunk file once its estimated size crosses chunk_budget_bytes.
type accumulator struct {
	dir         string
	chunkBudget int64
	compression postings.CompressionFormat
	log         zerolog.Logger

	records   map[uint64]*postings.Record
	approxLen int64
	chunkSeq  int
	chunkPaths []string
}

func newAccumulator(dir string, chunkBudgetBytes int64, compression postings.CompressionFormat, log zerolog.Logger) *accumulator {
	if chunkBudgetBytes <= 0 {
		chunkBudgetBytes = 256 << 20 // a few hundred MiB, per spec 4.2's default
	}
	return &accumulator{
		dir:         dir,
		chunkBudget: chunkBudgetBytes,
		compression: compression,
		log:         log,
		records:     make(map[uint64]*postings.Record),
	}
}

// add records one (primaryID, secondaryID) occurrence, incrementing count
// by delta. Spills the accumulator to a new chunk if the byte budget is
// exceeded.
func (a *accumulator) add(primaryID, secondaryID uint64, delta uint64) error {
	rec, ok := a.records[primaryID]
	if !ok {
		rec = &postings.Record{PrimaryID: primaryID}
		a.records[primaryID] = rec
		a.approxLen += entrySize
	}
	for i := range rec.Entries {
		if rec.Entries[i].SecondaryID == secondaryID {
			rec.Entries[i].Count += delta
			return a.maybeSpill()
		}
	}
	rec.Entries = append(rec.Entries, postings.Entry{SecondaryID: secondaryID, Count: delta})
	a.approxLen += entrySize
	return a.maybeSpill()
}

func (a *accumulator) maybeSpill() error {
	if a.approxLen < a.chunkBudget {
		return nil
	}
	return a.spill()
}

// spill sorts the accumulator by primary_id and streams it to chunk-N,
// then clears the in-memory state (spec 4.2 chunk-spill policy).
func (a *accumulator) spill() error {
	if len(a.records) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(a.records))
	for id := range a.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	path := filepath.Join(a.dir, fmt.Sprintf("chunk-%d", a.chunkSeq))
	a.chunkSeq++

	w, err := postings.CreateChunk(path, a.compression)
	if err != nil {
		return fmt.Errorf("spilling chunk: %w", err)
	}
	for _, id := range ids {
		rec := a.records[id]
		sort.Slice(rec.Entries, func(i, j int) bool { return rec.Entries[i].SecondaryID < rec.Entries[j].SecondaryID })
		if err := w.WriteRecord(*rec); err != nil {
			w.Close()
			return fmt.Errorf("spilling chunk: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("spilling chunk: %w", err)
	}

	a.log.Debug().Str("path", path).Int("records", len(ids)).Msg("spilled accumulator chunk")

	a.chunkPaths = append(a.chunkPaths, path)
	a.records = make(map[uint64]*postings.Record)
	a.approxLen = 0
	return nil
}

// finish spills any remaining in-memory records and returns all chunk
// paths written so far, in spill order.
func (a *accumulator) finish() ([]string, error) {
	if err := a.spill(); err != nil {
		return nil, err
	}
	if len(a.chunkPaths) == 0 {
		// Nothing was ever indexed; produce one empty chunk so the merger
		// has something to work with.
		path := filepath.Join(a.dir, "chunk-0")
		w, err := postings.CreateChunk(path, a.compression)
		if err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		a.chunkPaths = append(a.chunkPaths, path)
	}
	return a.chunkPaths, nil
}
