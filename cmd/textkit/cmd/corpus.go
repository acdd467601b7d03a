package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/textkit/textkit/internal/index"
)

// dirCorpus drives index.Build from a directory where every regular file
// is one document, whitespace-tokenized (spec 1 leaves corpus layout to
// the caller; this is the CLI's own minimal convention). Files are
// visited in a fixed lexical order so the doc_id assignment is
// reproducible across runs (spec 5).
type dirCorpus struct {
	dir string
}

func (c dirCorpus) ForEach(fn func(index.Document) error) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading corpus directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(c.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := fn(index.Document{Path: path, Tokens: strings.Fields(string(data))}); err != nil {
			return err
		}
	}
	return nil
}

// readTaggedLines parses the "word/TAG word/TAG ..." line format used by
// crf train/test data files, one sequence per line.
func readTaggedLines(path string) (symbols, tags [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		syms := make([]string, 0, len(fields))
		tgs := make([]string, 0, len(fields))
		for _, f := range fields {
			idx := strings.LastIndex(f, "/")
			if idx < 0 {
				return nil, nil, fmt.Errorf("malformed token %q in %s: expected word/TAG", f, path)
			}
			syms = append(syms, f[:idx])
			tgs = append(tgs, f[idx+1:])
		}
		symbols = append(symbols, syms)
		tags = append(tags, tgs)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return symbols, tags, nil
}

// readUntaggedLines parses one whitespace-tokenized sentence per line,
// used by crf tag's non-interactive file mode.
func readUntaggedLines(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out [][]string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, strings.Fields(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}
