package index

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/textkit/textkit/internal/errs"
)

type sliceCorpus []Document

func (c sliceCorpus) ForEach(fn func(Document) error) error {
	for _, d := range c {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func tokenize(s string) []string { return strings.Fields(s) }

func buildTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "idx")

	corpus := sliceCorpus{
		{Path: "d1.txt", Tokens: tokenize("the cat sat")},
		{Path: "d2.txt", Tokens: tokenize("the dog ran")},
	}

	idx, err := Build(BuildConfig{
		Dir:              dir,
		Kind:             Inverted,
		ChunkBudgetBytes: 1 << 20,
		Workers:          2,
		Log:              zerolog.Nop(),
	}, corpus)
	require.NoError(t, err)
	return idx, dir
}

func TestBuildIndexIdentity(t *testing.T) {
	idx, _ := buildTestIndex(t)
	defer idx.Close()

	theID, ok := idx.TermID("the")
	require.True(t, ok)
	catID, ok := idx.TermID("cat")
	require.True(t, ok)

	require.Equal(t, 2, idx.DocFrequency(theID))
	require.Equal(t, 1, idx.DocFrequency(catID))

	rec, err := idx.Postings(theID)
	require.NoError(t, err)
	require.Len(t, rec.Entries, 2)
	for _, e := range rec.Entries {
		require.Equal(t, uint64(1), e.Count)
	}

	rec, err = idx.Postings(catID)
	require.NoError(t, err)
	require.Len(t, rec.Entries, 1)
}

func TestUnknownTermReturnsEmptyRecord(t *testing.T) {
	idx, _ := buildTestIndex(t)
	defer idx.Close()

	rec, err := idx.Postings(999999)
	require.NoError(t, err)
	require.True(t, rec.Empty())
	require.Equal(t, 0, idx.DocFrequency(999999))
}

func TestReopenIndexIsIdentical(t *testing.T) {
	idx, dir := buildTestIndex(t)
	theID, _ := idx.TermID("the")
	first, err := idx.Postings(theID)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := Open(dir, Inverted)
	require.NoError(t, err)
	defer reopened.Close()

	second, err := reopened.Postings(theID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, idx.DocFrequency(theID), reopened.DocFrequency(theID))
}

func TestPostingsCacheReturnsBitExactRecords(t *testing.T) {
	idx, _ := buildTestIndex(t)
	defer idx.Close()

	theID, ok := idx.TermID("the")
	require.True(t, ok)

	// First call misses the cache and reads the mmap'd postings file;
	// the second must hit the cache and return an identical record
	// (spec 4.4: "every postings(t) call returns the bit-exact same
	// record whether served from cache or storage").
	first, err := idx.Postings(theID)
	require.NoError(t, err)
	require.Equal(t, 1, idx.cache.Len())

	second, err := idx.Postings(theID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBuildStampsRecoverableBuildID(t *testing.T) {
	idx, dir := buildTestIndex(t)
	require.NotEmpty(t, idx.BuildID())
	require.NoError(t, idx.Close())

	reopened, err := Open(dir, Inverted)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, idx.BuildID(), reopened.BuildID())
}

func TestSQLiteLexiconBackendRoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	corpus := sliceCorpus{
		{Path: "d1.txt", Tokens: tokenize("the cat sat")},
		{Path: "d2.txt", Tokens: tokenize("the dog ran")},
	}

	idx, err := Build(BuildConfig{
		Dir:              dir,
		Kind:             Inverted,
		ChunkBudgetBytes: 1 << 20,
		Workers:          2,
		Log:              zerolog.Nop(),
		LexiconBackend:   LexiconBackendSQLite,
	}, corpus)
	require.NoError(t, err)

	theID, ok := idx.TermID("the")
	require.True(t, ok)
	first, err := idx.Postings(theID)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	require.FileExists(t, filepath.Join(dir, lexiconSQLiteFileName))
	require.NoFileExists(t, filepath.Join(dir, lexiconFileName))

	reopened, err := Open(dir, Inverted)
	require.NoError(t, err)
	defer reopened.Close()

	second, err := reopened.Postings(theID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, idx.DocFrequency(theID), reopened.DocFrequency(theID))
}

func TestBuildOnNonEmptyDirFails(t *testing.T) {
	_, dir := buildTestIndex(t)
	corpus := sliceCorpus{{Path: "d3.txt", Tokens: tokenize("x y z")}}
	_, err := Build(BuildConfig{Dir: dir, Kind: Inverted, Log: zerolog.Nop()}, corpus)
	require.ErrorIs(t, err, errs.ErrIndexAlreadyExists)
}
