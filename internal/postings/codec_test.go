package postings

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Record{
		{PrimaryID: 0, Entries: nil},
		{PrimaryID: 7, Entries: []Entry{{SecondaryID: 1, Count: 1}}},
		{PrimaryID: 42, Entries: []Entry{
			{SecondaryID: 1, Count: 3},
			{SecondaryID: 5, Count: 1},
			{SecondaryID: 9, Count: 100},
		}},
	}
	for _, rec := range cases {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, rec))
		require.Equal(t, buf.Len(), EncodedLen(rec))

		got, err := Decode(bufio.NewReader(&buf), 0)
		require.NoError(t, err)
		require.Equal(t, rec.PrimaryID, got.PrimaryID)
		require.Equal(t, len(rec.Entries), len(got.Entries))
		for i := range rec.Entries {
			require.Equal(t, rec.Entries[i], got.Entries[i])
		}
	}
}

func TestDecodeEOF(t *testing.T) {
	_, err := Decode(bufio.NewReader(bytes.NewReader(nil)), 0)
	require.ErrorIs(t, err, io.EOF)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []string{
		"abc 1 2\n",     // non-integer primary key
		"1 2\n",         // odd field count after primary key
		"1 5 1 3 1\n",   // non-monotonic secondary keys
		"1 x 1\n",       // non-integer secondary key
	}
	for _, line := range tests {
		_, err := Decode(bufio.NewReader(bytes.NewReader([]byte(line))), 0)
		require.Error(t, err)
	}
}

func TestMerge(t *testing.T) {
	a := Record{PrimaryID: 1, Entries: []Entry{{SecondaryID: 1, Count: 1}}}
	b := Record{PrimaryID: 1, Entries: []Entry{{SecondaryID: 1, Count: 2}, {SecondaryID: 2, Count: 5}}}
	merged := Merge(a, b)
	require.Equal(t, uint64(1), merged.PrimaryID)
	require.Equal(t, []Entry{{SecondaryID: 1, Count: 3}, {SecondaryID: 2, Count: 5}}, merged.Entries)
}

func TestCountOfUnknownSecondaryIsZero(t *testing.T) {
	rec := Record{PrimaryID: 1, Entries: []Entry{{SecondaryID: 1, Count: 5}}}
	require.Equal(t, uint64(0), rec.CountOf(99))
}
