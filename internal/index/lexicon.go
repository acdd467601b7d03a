package index

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/textkit/textkit/internal/chunkmerge"
	"github.com/textkit/textkit/internal/errs"
)

// LexiconEntry is one primary_id's aggregate statistics plus the byte
// offset of its postings record (spec 3 "lexicon entry").
type LexiconEntry struct {
	Offset     int64
	DocFreq    int
	TotalCount uint64
	cachedIDF  float64
	idfValid   bool
}

// lexicon is a dense, id-indexed lookup table, in the style of the
// teacher's slicemap[T] (go/mcap/slicemap.go): primary_ids are dense and
// assigned in increasing order, so a slice indexed by id outperforms a
// map for the read-heavy query path.
type lexicon struct {
	entries []LexiconEntry // index i == primary_id i
	present []bool         // present[i] reports whether primary_id i has an entry
	numKeys int            // total number of primary ids with postings
}

func newLexicon() *lexicon {
	return &lexicon{}
}

func (l *lexicon) set(primaryID uint64, e LexiconEntry) {
	idx := int(primaryID)
	if idx >= len(l.entries) {
		grow := idx + 1 - len(l.entries)
		l.entries = append(l.entries, make([]LexiconEntry, grow)...)
		l.present = append(l.present, make([]bool, grow)...)
	}
	if !l.present[idx] {
		l.numKeys++
	}
	l.entries[idx] = e
	l.present[idx] = true
}

// get returns the entry for primaryID and whether it is present. Unknown
// primary ids return the zero value (spec 4.2: "if the term_id is unknown,
// returns an empty record ... not an error").
func (l *lexicon) get(primaryID uint64) (LexiconEntry, bool) {
	idx := int(primaryID)
	if idx < 0 || idx >= len(l.entries) || !l.present[idx] {
		return LexiconEntry{}, false
	}
	return l.entries[idx], true
}

// cachedIDF computes and caches log((numDocs+1)/(docFreq+0.5)), the same
// inverse-document-frequency shape used by the pivoted-length ranker
// (spec 4.5), per original_source/'s TermData.idf field (see SPEC_FULL.md
// SUPPLEMENTED FEATURES).
func (l *lexicon) cachedIDF(primaryID uint64, numDocs uint64) float64 {
	idx := int(primaryID)
	if idx < 0 || idx >= len(l.entries) || !l.present[idx] {
		return 0
	}
	e := &l.entries[idx]
	if !e.idfValid {
		e.cachedIDF = math.Log((float64(numDocs) + 1) / (float64(e.DocFreq) + 0.5))
		e.idfValid = true
	}
	return e.cachedIDF
}

// writeLexicon persists the lexicon as spec 6's `lexicon.index`: one
// `primary_key byte_offset` pair per line. Aggregate stats (doc freq,
// total count) are recomputed from the postings file at open() time
// rather than duplicated on disk, since the postings file is the single
// source of truth for them.
func writeLexicon(path string, entries []chunkmerge.LexiconEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing lexicon: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%d %d\n", e.PrimaryID, e.Offset); err != nil {
			f.Close()
			return fmt.Errorf("writing lexicon: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing lexicon: %w", err)
	}
	return f.Close()
}

// readLexiconOffsets loads the primary_id -> byte_offset pairs from
// lexicon.index. Document frequency and total count are filled in
// separately by a single scan of the postings file (see index.go).
func readLexiconOffsets(path string) (map[uint64]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lexicon: %w", err)
	}
	defer f.Close()

	offsets := make(map[uint64]int64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &errs.CorruptChunk{Path: path, Reason: "malformed lexicon line"}
		}
		pk, err1 := strconv.ParseUint(fields[0], 10, 64)
		off, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, &errs.CorruptChunk{Path: path, Reason: "non-integer lexicon field"}
		}
		offsets[pk] = off
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	return offsets, nil
}
