// Package diskvector implements the single length-prefixed, typed,
// little-endian binary array format shared by all of the CRF's flat
// on-disk vectors (spec 9: "Disk vectors that conflate raw bytes with
// typed arrays" -- redesigned as one typed reader/writer instead of raw
// pointer arithmetic over an mmap'd byte region).
package diskvector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/textkit/textkit/internal/errs"
)

// WriteUint64 persists vec as a length-prefixed (uint64 count, then
// little-endian uint64 elements) file at path.
func WriteUint64(path string, vec []uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing vector %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(vec))); err != nil {
		return fmt.Errorf("writing vector %s: %w", path, err)
	}
	if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
		return fmt.Errorf("writing vector %s: %w", path, err)
	}
	return w.Flush()
}

// ReadUint64 loads a vector previously written by WriteUint64.
func ReadUint64(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vector %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, &errs.CorruptModel{Path: path, Reason: "truncated length prefix"}
	}
	vec := make([]uint64, n)
	if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
		return nil, &errs.CorruptModel{Path: path, Reason: "truncated vector body"}
	}
	return vec, nil
}

// WriteFloat64 persists vec in the same length-prefixed little-endian
// shape as WriteUint64, for the IEEE-754 double weight arrays.
func WriteFloat64(path string, vec []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing vector %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(vec))); err != nil {
		return fmt.Errorf("writing vector %s: %w", path, err)
	}
	if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
		return fmt.Errorf("writing vector %s: %w", path, err)
	}
	return w.Flush()
}

// ReadFloat64 loads a vector previously written by WriteFloat64.
func ReadFloat64(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vector %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, &errs.CorruptModel{Path: path, Reason: "truncated length prefix"}
	}
	vec := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
		return nil, &errs.CorruptModel{Path: path, Reason: "truncated vector body"}
	}
	return vec, nil
}
