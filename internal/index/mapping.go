package index

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/textkit/textkit/internal/errs"
)

// idMapping is the append-only-during-build, read-only-at-query id<->string
// bijection shared by termids.mapping and docids.mapping (spec 3, spec 6).
type idMapping struct {
	byID  []string
	byStr map[string]uint64
}

func newIDMapping() *idMapping {
	return &idMapping{byStr: make(map[string]uint64)}
}

// idFor returns the id for s, assigning a new dense id if s has not been
// seen before (non-const / training-time mode, spec 4.7's analyzer shape
// generalized to term/doc ids).
func (m *idMapping) idFor(s string) uint64 {
	if id, ok := m.byStr[s]; ok {
		return id
	}
	id := uint64(len(m.byID))
	m.byID = append(m.byID, s)
	m.byStr[s] = id
	return id
}

func (m *idMapping) stringFor(id uint64) (string, bool) {
	if id >= uint64(len(m.byID)) {
		return "", false
	}
	return m.byID[id], true
}

func (m *idMapping) len() int { return len(m.byID) }

func writeMapping(path string, m *idMapping) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing mapping %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for id, s := range m.byID {
		if _, err := fmt.Fprintf(w, "%d %s\n", id, s); err != nil {
			f.Close()
			return fmt.Errorf("writing mapping %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing mapping %s: %w", path, err)
	}
	return f.Close()
}

func readMapping(path string) (*idMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping %s: %w", path, err)
	}
	defer f.Close()

	m := newIDMapping()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		sp := strings.SplitN(line, " ", 2)
		if len(sp) != 2 {
			return nil, &errs.CorruptChunk{Path: path, Reason: "malformed mapping line"}
		}
		id, err := strconv.ParseUint(sp[0], 10, 64)
		if err != nil {
			return nil, &errs.CorruptChunk{Path: path, Reason: "non-integer mapping id"}
		}
		for uint64(len(m.byID)) <= id {
			m.byID = append(m.byID, "")
		}
		m.byID[id] = sp[1]
		m.byStr[sp[1]] = id
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading mapping %s: %w", path, err)
	}
	return m, nil
}

// writeDocSizes persists docsizes.counts: one `doc_id length` pair per
// line, where length is the document's total token count.
func writeDocSizes(path string, sizes []uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing doc sizes: %w", err)
	}
	w := bufio.NewWriter(f)
	for id, n := range sizes {
		if _, err := fmt.Fprintf(w, "%d %d\n", id, n); err != nil {
			f.Close()
			return fmt.Errorf("writing doc sizes: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing doc sizes: %w", err)
	}
	return f.Close()
}

func readDocSizes(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening doc sizes: %w", err)
	}
	defer f.Close()

	var sizes []uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &errs.CorruptChunk{Path: path, Reason: "malformed doc size line"}
		}
		id, err1 := strconv.ParseUint(fields[0], 10, 64)
		n, err2 := strconv.ParseUint(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, &errs.CorruptChunk{Path: path, Reason: "non-integer doc size field"}
		}
		for uint64(len(sizes)) <= id {
			sizes = append(sizes, 0)
		}
		sizes[id] = n
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading doc sizes: %w", err)
	}
	return sizes, nil
}
