package postings

import (
	"bufio"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/textkit/textkit/internal/errs"
)

// CompressionFormat selects how a chunk file's record stream is compressed
// on disk, mirroring the teacher's chunk compression knob. Compression is
// applied uniformly to a whole chunk, never per-record.
type CompressionFormat string

const (
	CompressionNone CompressionFormat = ""
	CompressionZSTD CompressionFormat = "zstd"
	CompressionLZ4  CompressionFormat = "lz4"
)

// crcWriter tees writes through a running CRC-32 (IEEE) checksum, the same
// accumulate-as-you-write pattern used for MCAP chunk records.
type crcWriter struct {
	w   io.Writer
	crc hash.Hash32
}

func newCRCWriter(w io.Writer) *crcWriter {
	return &crcWriter{w: w, crc: crc32.NewIEEE()}
}

func (c *crcWriter) Write(p []byte) (int, error) {
	_, _ = c.crc.Write(p)
	return c.w.Write(p)
}

func (c *crcWriter) Checksum() uint32 { return c.crc.Sum32() }

type crcReader struct {
	r   io.Reader
	crc hash.Hash32
}

func newCRCReader(r io.Reader) *crcReader {
	return &crcReader{r: r, crc: crc32.NewIEEE()}
}

func (c *crcReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	_, _ = c.crc.Write(p[:n])
	return n, err
}

func (c *crcReader) Checksum() uint32 { return c.crc.Sum32() }

// ChunkWriter streams Records to a chunk file, sorted by PrimaryID by the
// caller, applying the configured compression and keeping a running
// CRC-32 of the bytes written (see Checksum). The checksum is not stored
// in the file; a reader can verify it only if the caller passes it to
// OpenChunk.
type ChunkWriter struct {
	f           *os.File
	crc         *crcWriter
	compressed  io.WriteCloser
	buffered    *bufio.Writer
	compression CompressionFormat
	count       int
}

// CreateChunk opens path for writing and returns a ChunkWriter. Close must
// be called to flush buffers and finalize compression; no footer is
// written, so the file holds only the record stream.
func CreateChunk(path string, compression CompressionFormat) (*ChunkWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating chunk %s: %w", path, err)
	}
	crc := newCRCWriter(f)
	cw := &ChunkWriter{f: f, crc: crc, compression: compression}
	switch compression {
	case CompressionZSTD:
		zw, err := zstd.NewWriter(crc)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating zstd chunk writer: %w", err)
		}
		cw.compressed = zw
		cw.buffered = bufio.NewWriter(zw)
	case CompressionLZ4:
		lw := lz4.NewWriter(crc)
		cw.compressed = lw
		cw.buffered = bufio.NewWriter(lw)
	default:
		cw.buffered = bufio.NewWriter(crc)
	}
	return cw, nil
}

// WriteRecord appends one record to the chunk.
func (c *ChunkWriter) WriteRecord(rec Record) error {
	if err := Encode(c.buffered, rec); err != nil {
		return err
	}
	c.count++
	return nil
}

// Count returns the number of records written so far.
func (c *ChunkWriter) Count() int { return c.count }

// Checksum returns the running CRC-32 of the bytes written to disk so far
// (post-compression). Only meaningful after Close.
func (c *ChunkWriter) Checksum() uint32 { return c.crc.Checksum() }

// Close flushes all buffers and closes the underlying file. The final CRC
// of the (possibly compressed) byte stream is available via Checksum only
// after Close returns.
func (c *ChunkWriter) Close() error {
	if err := c.buffered.Flush(); err != nil {
		c.f.Close()
		return fmt.Errorf("flushing chunk: %w", err)
	}
	if c.compressed != nil {
		if err := c.compressed.Close(); err != nil {
			c.f.Close()
			return fmt.Errorf("closing compressed chunk stream: %w", err)
		}
	}
	return c.f.Close()
}

// ChunkReader reads Records back out of a chunk file written by ChunkWriter,
// verifying the compressed byte stream against an expected CRC-32 as it
// reads (CorruptChunk on mismatch, checked at Close).
type ChunkReader struct {
	f        *os.File
	br       *bufio.Reader
	crc      *crcReader
	wantCRC  uint32
	checkCRC bool
	offset   int64
	path     string
}

// OpenChunk opens path for sequential record reads. wantCRC is the checksum
// recorded by the writer (see ChunkWriter.Checksum); pass 0 with checkCRC
// false to skip verification.
func OpenChunk(path string, compression CompressionFormat, wantCRC uint32, checkCRC bool) (*ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chunk %s: %w", path, err)
	}
	crc := newCRCReader(f)
	var r io.Reader = crc
	switch compression {
	case CompressionZSTD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating zstd chunk reader: %w", err)
		}
		r = zr.IOReadCloser()
	case CompressionLZ4:
		r = lz4.NewReader(r)
	}
	return &ChunkReader{f: f, br: bufio.NewReader(r), crc: crc, wantCRC: wantCRC, checkCRC: checkCRC, path: path}, nil
}

// Next returns the next record, or io.EOF when the chunk is exhausted.
func (c *ChunkReader) Next() (Record, error) {
	rec, err := Decode(c.br, c.offset)
	if err != nil {
		return Record{}, err
	}
	c.offset += int64(EncodedLen(rec))
	return rec, nil
}

// Close releases the underlying file handle, verifying the chunk's CRC-32
// against the checksum recorded at write time (if checkCRC was requested).
func (c *ChunkReader) Close() error {
	defer c.f.Close()
	if c.checkCRC && c.crc.Checksum() != c.wantCRC {
		return &errs.CorruptChunk{Path: c.path, Reason: "crc-32 mismatch"}
	}
	return nil
}
