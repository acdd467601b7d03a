package diskvector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/textkit/textkit/internal/errs"
)

func TestUint64RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.u64")
	want := []uint64{0, 1, 7, 42, 1 << 40}
	require.NoError(t, WriteUint64(path, want))

	got, err := ReadUint64(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFloat64RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.f64")
	want := []float64{0, -1.5, 3.25, 1e300}
	require.NoError(t, WriteFloat64(path, want))

	got, err := ReadFloat64(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEmptyVectorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.u64")
	require.NoError(t, WriteUint64(path, nil))

	got, err := ReadUint64(path)
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestReadTruncatedFileIsCorruptModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.u64")
	require.NoError(t, WriteUint64(path, []uint64{1, 2, 3}))

	// Truncate to just the length prefix, dropping the element body.
	require.NoError(t, os.Truncate(path, 8))

	_, err := ReadUint64(path)
	var corrupt *errs.CorruptModel
	require.ErrorAs(t, err, &corrupt)
}
