package postings

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/textkit/textkit/internal/errs"
)

// Encode writes rec in the textual baseline format: "pk sk0 c0 sk1 c1 ...\n",
// decimal integers separated by single spaces (spec 4.1, 6).
func Encode(w io.Writer, rec Record) error {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(rec.PrimaryID, 10))
	for _, e := range rec.Entries {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatUint(e.SecondaryID, 10))
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatUint(e.Count, 10))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// Decode reads one record from r, which must be positioned at the start of
// a line in the baseline format. io.EOF is returned (unwrapped) when r is
// exhausted before any bytes are read. offset is used only to annotate a
// CorruptPostings error with the byte position it started from.
func Decode(r *bufio.Reader, offset int64) (Record, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return Record{}, io.EOF
		}
		if err != io.EOF {
			return Record{}, fmt.Errorf("reading postings record: %w", err)
		}
	}
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return Record{}, io.EOF
	}
	return parseLine(line, offset)
}

// DecodeAt parses one record directly out of a byte slice (an mmap'd
// postings file) starting at offset, without copying the slice into a
// reader first. It stops at the first '\n' or the end of data.
func DecodeAt(data []byte, offset int64) (Record, error) {
	if offset < 0 || offset > int64(len(data)) {
		return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "offset out of range"}
	}
	end := offset
	for end < int64(len(data)) && data[end] != '\n' {
		end++
	}
	line := string(data[offset:end])
	if line == "" {
		return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "empty record"}
	}
	return parseLine(line, offset)
}

func parseLine(line string, offset int64) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "empty record"}
	}

	pk, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "non-integer primary key " + fields[0]}
	}

	rest := fields[1:]
	if len(rest)%2 != 0 {
		return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "odd number of fields after primary key"}
	}

	rec := Record{PrimaryID: pk, Entries: make([]Entry, 0, len(rest)/2)}
	var prevSecondary uint64
	for i := 0; i < len(rest); i += 2 {
		sk, err := strconv.ParseUint(rest[i], 10, 64)
		if err != nil {
			return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "non-integer secondary key " + rest[i]}
		}
		count, err := strconv.ParseUint(rest[i+1], 10, 64)
		if err != nil {
			return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "non-integer count " + rest[i+1]}
		}
		if i > 0 && sk <= prevSecondary {
			return Record{}, &errs.CorruptPostings{Offset: offset, Reason: "non-monotonic secondary keys"}
		}
		rec.Entries = append(rec.Entries, Entry{SecondaryID: sk, Count: count})
		prevSecondary = sk
	}
	return rec, nil
}

// EncodedLen returns the exact byte length Encode would produce for rec,
// without building the encoded line; used to track byte offsets while
// reading a chunk and while building the lexicon.
func EncodedLen(rec Record) int {
	n := len(strconv.FormatUint(rec.PrimaryID, 10))
	for _, e := range rec.Entries {
		n += 1 + len(strconv.FormatUint(e.SecondaryID, 10))
		n += 1 + len(strconv.FormatUint(e.Count, 10))
	}
	return n + 1 // trailing newline
}
