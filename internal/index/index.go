package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/textkit/textkit/internal/cache"
	"github.com/textkit/textkit/internal/chunkmerge"
	"github.com/textkit/textkit/internal/errs"
	"github.com/textkit/textkit/internal/postings"
)

// Kind selects which of the two symmetric views (spec 4.2) an Index
// represents. Both share the same codec and merger; only the primary/
// secondary key roles swap.
type Kind int

const (
	Inverted Kind = iota // primary = term_id, secondary = doc_id
	Forward              // primary = doc_id, secondary = term_id
)

const (
	postingsFileName = "postings.index"
	lexiconFileName  = "lexicon.index"
	docidsFileName   = "docids.mapping"
	docsizesFileName = "docsizes.counts"
	termidsFileName  = "termids.mapping"
	configFileName   = "config.toml"
	buildIDFileName  = "build.id"
)

// Document is one unit of the opaque, already-tokenized corpus stream
// (spec 1's non-goal: tokenization itself is out of scope). Tokens are
// surface terms in document order; Label is an optional class label
// (spec 3) that Build accepts but does not store.
type Document struct {
	Path   string
	Tokens []string
	Label  string
}

// Corpus yields documents to fn in a fixed order; that order becomes the
// doc_id assignment (spec 5: "the global doc_id assignment must remain a
// total order matching the corpus driver's output order").
type Corpus interface {
	ForEach(fn func(Document) error) error
}

// BuildConfig parameterizes Build (spec 4.2's chunk-spill policy and
// optional chunk/scratch compression).
type BuildConfig struct {
	Dir              string
	Kind             Kind
	ChunkBudgetBytes int64
	Compression      postings.CompressionFormat
	Workers          int
	Log              zerolog.Logger
	ConfigTOML       []byte // verbatim copy of the config used to build, spec 6

	// CacheVariant/CacheCapacity configure the postings cache (spec 4.4)
	// that shields Postings() from re-reading the mmap'd file on repeat
	// lookups. CacheVariant defaults to the splay-tree variant;
	// CacheCapacity defaults to defaultCacheCapacity if unset.
	CacheVariant  cache.Variant
	CacheCapacity int

	// LexiconBackend selects how the primary_id -> byte_offset mapping is
	// persisted: LexiconBackendFlat (default, spec 6's lexicon.index) or
	// LexiconBackendSQLite (lexicon.sqlite3). Open auto-detects which was
	// used, so callers need not repeat the choice.
	LexiconBackend LexiconBackend
}

// defaultCacheCapacity bounds the postings cache (spec 4.4) when a
// BuildConfig/Open caller leaves CacheCapacity unset.
const defaultCacheCapacity = 4096

func cacheOrDefault(variant cache.Variant, capacity int) (cache.Cache, error) {
	if variant == "" {
		variant = cache.VariantSplay
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return cache.New(variant, capacity)
}

// Index is a read-only, mmap'd view of postings.index plus its lexicon
// and id mappings (spec 3 "ownership": the index exclusively owns its
// mmap handle and mapping tables).
type Index struct {
	dir  string
	kind Kind

	file *os.File
	data mmap.MMap

	lex        *lexicon
	primaryMap *idMapping // termids.mapping (Inverted) or docids.mapping (Forward)
	docSizes   []uint64   // only meaningful for Inverted (doc_id -> length)
	numDocs    uint64

	cache cache.Cache // shields recordAt from repeat mmap reads (spec 4.4)

	buildID string // stamped at Build() time, so repeated builds in logs are distinguishable
}

// BuildID returns the UUID stamped onto this index at build time, or ""
// for an index opened from a directory built before build.id existed.
func (idx *Index) BuildID() string { return idx.buildID }

// Build drives one-shot construction of an index directory (spec 4.2):
// accumulate postings in memory, spill sorted chunks, merge them, write
// the lexicon and id mappings, and return a ready Index. Calling Build
// against an existing non-empty directory fails with IndexAlreadyExists.
func Build(cfg BuildConfig, corpus Corpus) (*Index, error) {
	if cfg.Dir == "" {
		return nil, &errs.CorruptChunk{Path: "", Reason: "empty index directory"}
	}
	if entries, err := os.ReadDir(cfg.Dir); err == nil && len(entries) > 0 {
		return nil, errs.ErrIndexAlreadyExists
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	termMap := newIDMapping()
	docMap := newIDMapping()
	var docSizes []uint64

	acc := newAccumulator(cfg.Dir, cfg.ChunkBudgetBytes, cfg.Compression, cfg.Log)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	type counted struct {
		docID  uint64
		counts map[string]uint64
		length uint64
	}

	jobs := make(chan struct {
		docID uint64
		doc   Document
	}, workers*2)
	results := make(chan counted, workers*2)
	errs2 := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				counts := make(map[string]uint64, len(j.doc.Tokens))
				for _, tok := range j.doc.Tokens {
					counts[tok]++
				}
				results <- counted{docID: j.docID, counts: counts, length: uint64(len(j.doc.Tokens))}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	driverErr := make(chan error, 1)
	go func() {
		nextID := uint64(0)
		err := corpus.ForEach(func(doc Document) error {
			docID := nextID
			nextID++
			docMap.idFor(doc.Path)
			jobs <- struct {
				docID uint64
				doc   Document
			}{docID: docID, doc: doc}
			return nil
		})
		close(jobs)
		driverErr <- err
	}()

	for r := range results {
		for term, c := range r.counts {
			termID := termMap.idFor(term)
			var primaryID, secondaryID uint64
			if cfg.Kind == Inverted {
				primaryID, secondaryID = termID, r.docID
			} else {
				primaryID, secondaryID = r.docID, termID
			}
			if err := acc.add(primaryID, secondaryID, c); err != nil {
				select {
				case errs2 <- err:
				default:
				}
			}
		}
		for uint64(len(docSizes)) <= r.docID {
			docSizes = append(docSizes, 0)
		}
		docSizes[r.docID] = r.length
	}

	if err := <-driverErr; err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	select {
	case err := <-errs2:
		return nil, err
	default:
	}

	chunkPaths, err := acc.finish()
	if err != nil {
		return nil, err
	}

	merger := &chunkmerge.Merger{Dir: cfg.Dir, Compression: cfg.Compression, Log: cfg.Log}
	result, err := merger.Merge(chunkPaths, filepath.Join(cfg.Dir, postingsFileName))
	if err != nil {
		return nil, err
	}

	if cfg.LexiconBackend == LexiconBackendSQLite {
		if err := writeLexiconSQLite(filepath.Join(cfg.Dir, lexiconSQLiteFileName), result.Lexicon); err != nil {
			return nil, err
		}
	} else {
		if err := writeLexicon(filepath.Join(cfg.Dir, lexiconFileName), result.Lexicon); err != nil {
			return nil, err
		}
	}
	if err := writeMapping(filepath.Join(cfg.Dir, termidsFileName), termMap); err != nil {
		return nil, err
	}
	if err := writeMapping(filepath.Join(cfg.Dir, docidsFileName), docMap); err != nil {
		return nil, err
	}
	if err := writeDocSizes(filepath.Join(cfg.Dir, docsizesFileName), docSizes); err != nil {
		return nil, err
	}
	if len(cfg.ConfigTOML) > 0 {
		if err := os.WriteFile(filepath.Join(cfg.Dir, configFileName), cfg.ConfigTOML, 0o644); err != nil {
			return nil, fmt.Errorf("writing config.toml: %w", err)
		}
	}

	buildID := uuid.New().String()
	if err := os.WriteFile(filepath.Join(cfg.Dir, buildIDFileName), []byte(buildID+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing build.id: %w", err)
	}
	cfg.Log.Info().Str("build_id", buildID).Str("dir", cfg.Dir).Msg("stamped index build")

	lex := newLexicon()
	for _, e := range result.Lexicon {
		lex.set(e.PrimaryID, LexiconEntry{Offset: e.Offset, DocFreq: e.DocFreq, TotalCount: e.TotalCount})
	}

	var primaryMap *idMapping
	if cfg.Kind == Inverted {
		primaryMap = termMap
	} else {
		primaryMap = docMap
	}

	c, err := cacheOrDefault(cfg.CacheVariant, cfg.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("constructing postings cache: %w", err)
	}

	idx := &Index{
		dir:        cfg.Dir,
		kind:       cfg.Kind,
		lex:        lex,
		primaryMap: primaryMap,
		docSizes:   docSizes,
		buildID:    buildID,
		numDocs:    uint64(docMap.len()),
		cache:      c,
	}
	if err := idx.mmapPostings(); err != nil {
		return nil, err
	}
	return idx, nil
}

// OpenOption configures Open beyond its required directory/kind
// arguments. Currently only the postings cache variant/capacity (spec
// 4.4) is configurable this way.
type OpenOption func(*openOptions)

type openOptions struct {
	cacheVariant  cache.Variant
	cacheCapacity int
}

// WithCache selects the cache variant and capacity Open constructs for
// the returned Index's Postings() lookups (spec 4.4). Without this
// option, Open uses the splay-tree variant at defaultCacheCapacity.
func WithCache(variant cache.Variant, capacity int) OpenOption {
	return func(o *openOptions) {
		o.cacheVariant = variant
		o.cacheCapacity = capacity
	}
}

// Open loads mapping tables and memory-maps the postings file of an
// existing index directory (spec 4.2 open()).
func Open(dir string, kind Kind, opts ...OpenOption) (*Index, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lexOffsets map[uint64]int64
	var err error
	if lexiconSQLiteExists(dir) {
		lexOffsets, err = readLexiconOffsetsSQLite(filepath.Join(dir, lexiconSQLiteFileName))
	} else {
		lexOffsets, err = readLexiconOffsets(filepath.Join(dir, lexiconFileName))
	}
	if err != nil {
		return nil, err
	}

	termMap, err := readMapping(filepath.Join(dir, termidsFileName))
	if err != nil {
		return nil, err
	}
	docMap, err := readMapping(filepath.Join(dir, docidsFileName))
	if err != nil {
		return nil, err
	}
	docSizes, err := readDocSizes(filepath.Join(dir, docsizesFileName))
	if err != nil {
		return nil, err
	}

	c, err := cacheOrDefault(o.cacheVariant, o.cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("constructing postings cache: %w", err)
	}

	idx := &Index{
		dir:      dir,
		kind:     kind,
		docSizes: docSizes,
		numDocs:  uint64(docMap.len()),
		cache:    c,
		buildID:  readBuildID(dir),
	}
	if kind == Inverted {
		idx.primaryMap = termMap
	} else {
		idx.primaryMap = docMap
	}

	if err := idx.mmapPostings(); err != nil {
		return nil, err
	}

	// Recover document-frequency / total-count aggregates with a single
	// sequential pass, since lexicon.index (spec 6) stores only the byte
	// offset; this mirrors BuildLexicon's single-pass contract.
	lex := newLexicon()
	ids := make([]uint64, 0, len(lexOffsets))
	for id := range lexOffsets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rec, err := idx.recordAt(lexOffsets[id])
		if err != nil {
			return nil, err
		}
		lex.set(id, LexiconEntry{
			Offset:     lexOffsets[id],
			DocFreq:    rec.DocFrequency(),
			TotalCount: rec.TotalCount(),
		})
	}
	idx.lex = lex

	return idx, nil
}

// readBuildID returns the UUID stamped in dir/build.id, or "" if the
// file is missing (an index built before build.id existed).
func readBuildID(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, buildIDFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (idx *Index) mmapPostings() error {
	f, err := os.Open(filepath.Join(idx.dir, postingsFileName))
	if err != nil {
		return fmt.Errorf("opening postings file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("statting postings file: %w", err)
	}
	if fi.Size() == 0 {
		idx.file = f
		idx.data = nil
		return nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("mmapping postings file: %w", err)
	}
	idx.file = f
	idx.data = m
	return nil
}

// Close releases the index's mmap handle and underlying file descriptor.
func (idx *Index) Close() error {
	var err error
	if idx.data != nil {
		err = idx.data.Unmap()
	}
	if idx.file != nil {
		if cerr := idx.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NumPrimaryKeys returns the number of distinct primary keys (terms for
// an Inverted index, docs for a Forward index).
func (idx *Index) NumPrimaryKeys() int { return idx.primaryMap.len() }

// NumDocs returns N, the total number of indexed documents.
func (idx *Index) NumDocs() uint64 { return idx.numDocs }

// DocLength returns the token length of docID, or 0 if unknown.
func (idx *Index) DocLength(docID uint64) uint64 {
	if docID >= uint64(len(idx.docSizes)) {
		return 0
	}
	return idx.docSizes[docID]
}

// AverageDocLength returns avg_dl across all indexed documents.
func (idx *Index) AverageDocLength() float64 {
	if len(idx.docSizes) == 0 {
		return 0
	}
	var total uint64
	for _, n := range idx.docSizes {
		total += n
	}
	return float64(total) / float64(len(idx.docSizes))
}

// TermID looks up the dense id for a surface term (Inverted) or path
// (Forward). ok is false if the key was never indexed.
func (idx *Index) TermID(s string) (uint64, bool) {
	id, ok := idx.primaryMap.byStr[s]
	return id, ok
}

// DocFrequency returns the number of secondary keys recorded for
// primaryID (document frequency for Inverted, term count for Forward),
// or 0 if primaryID is unknown (spec 4.2: unknown primary keys are not
// an error).
func (idx *Index) DocFrequency(primaryID uint64) int {
	e, ok := idx.lex.get(primaryID)
	if !ok {
		return 0
	}
	return e.DocFreq
}

// TotalOccurrences returns the corpus-wide occurrence count (cf) for
// primaryID, or 0 if unknown.
func (idx *Index) TotalOccurrences(primaryID uint64) uint64 {
	e, ok := idx.lex.get(primaryID)
	if !ok {
		return 0
	}
	return e.TotalCount
}

// TotalTerms returns the corpus-wide total token count (sum of all
// document lengths), used by the language-model rankers' background
// model (spec 4.5).
func (idx *Index) TotalTerms() uint64 {
	var total uint64
	for _, n := range idx.docSizes {
		total += n
	}
	return total
}

// IDF returns the cached inverse-document-frequency statistic for
// primaryID (SUPPLEMENTED FEATURES: lexicon cached IDF).
func (idx *Index) IDF(primaryID uint64) float64 {
	return idx.lex.cachedIDF(primaryID, idx.numDocs)
}

// Postings returns the record for primaryID. Unknown primary keys return
// an empty record (document frequency zero), never an error (spec 4.2).
// Hits are served from idx.cache without touching the postings file
// (spec 4.4); every call returns the bit-exact same record whether
// served from cache or storage.
func (idx *Index) Postings(primaryID uint64) (postings.Record, error) {
	e, ok := idx.lex.get(primaryID)
	if !ok {
		return postings.Record{PrimaryID: primaryID}, nil
	}

	if idx.cache != nil {
		if rec, ok := idx.cache.Get(primaryID); ok {
			return rec, nil
		}
	}

	rec, err := idx.recordAt(e.Offset)
	if err != nil {
		return postings.Record{}, err
	}
	if idx.cache != nil {
		idx.cache.Put(primaryID, rec)
	}
	return rec, nil
}

func (idx *Index) recordAt(offset int64) (postings.Record, error) {
	if idx.data == nil {
		return postings.Record{}, &errs.CorruptPostings{Offset: offset, Reason: "empty postings file"}
	}
	if offset < 0 || offset >= int64(len(idx.data)) {
		return postings.Record{}, &errs.CorruptPostings{Offset: offset, Reason: "offset out of range"}
	}
	return postings.DecodeAt(idx.data, offset)
}
