package chunkmerge

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/textkit/textkit/internal/postings"
)

func writeChunk(t *testing.T, dir, name string, recs []postings.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	w, err := postings.CreateChunk(path, postings.CompressionNone)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.WriteRecord(r))
	}
	require.NoError(t, w.Close())
	return path
}

func readAll(t *testing.T, path string) []postings.Record {
	t.Helper()
	r, err := postings.OpenChunk(path, postings.CompressionNone, 0, false)
	require.NoError(t, err)
	defer r.Close()
	var out []postings.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestMergeTwoChunks(t *testing.T) {
	dir := t.TempDir()

	c1 := writeChunk(t, dir, "c1.chunk", []postings.Record{
		{PrimaryID: 1, Entries: []postings.Entry{{SecondaryID: 1, Count: 1}}},
	})
	c2 := writeChunk(t, dir, "c2.chunk", []postings.Record{
		{PrimaryID: 1, Entries: []postings.Entry{{SecondaryID: 2, Count: 1}}},
		{PrimaryID: 2, Entries: []postings.Entry{{SecondaryID: 1, Count: 1}}},
	})

	m := &Merger{Dir: dir, Log: zerolog.Nop()}
	out := filepath.Join(dir, "postings.index")
	result, err := m.Merge([]string{c1, c2}, out)
	require.NoError(t, err)

	got := readAll(t, result.PostingsPath)
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].PrimaryID)
	require.Equal(t, []postings.Entry{{SecondaryID: 1, Count: 1}, {SecondaryID: 2, Count: 1}}, got[0].Entries)
	require.Equal(t, uint64(2), got[1].PrimaryID)

	require.Len(t, result.Lexicon, 2)
	require.Equal(t, uint64(1), result.Lexicon[0].PrimaryID)
	require.Equal(t, int64(0), result.Lexicon[0].Offset)
}

func TestMergeManyChunksSizePriority(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeChunk(t, dir, fmt10(i), []postings.Record{
			{PrimaryID: uint64(i + 1), Entries: []postings.Entry{{SecondaryID: 1, Count: uint64(i + 1)}}},
		}))
	}
	m := &Merger{Dir: dir, Log: zerolog.Nop()}
	out := filepath.Join(dir, "postings.index")
	result, err := m.Merge(paths, out)
	require.NoError(t, err)

	got := readAll(t, result.PostingsPath)
	require.Len(t, got, 5)
	for i, rec := range got {
		require.Equal(t, uint64(i+1), rec.PrimaryID)
	}

	_, err = os.Stat(out)
	require.NoError(t, err)
}

func fmt10(i int) string {
	return "chunk-" + string(rune('a'+i)) + ".chunk"
}
