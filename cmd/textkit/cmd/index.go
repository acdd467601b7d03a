package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/textkit/textkit/internal/cache"
	"github.com/textkit/textkit/internal/config"
	"github.com/textkit/textkit/internal/index"
	"github.com/textkit/textkit/internal/postings"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or query an inverted/forward index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build <config.toml>",
	Short: "Build an index directory from a corpus (spec 4.2 build())",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexBuild,
}

var indexQueryCmd = &cobra.Command{
	Use:   "query <config.toml>",
	Short: "Interactively look up terms against an index's lexicon and postings",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexQuery,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexQueryCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	log := newLogger()

	compression := postings.CompressionFormat(cfg.Index.Compression)

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	bar := progressbar.Default(-1, "indexing")
	corpus := countingCorpus{inner: dirCorpus{dir: cfg.Index.Corpus}, bar: bar}

	buildCfg := index.BuildConfig{
		Dir:              cfg.Index.Dir,
		Kind:             index.Inverted,
		ChunkBudgetBytes: cfg.Index.ChunkBudgetBytes,
		Compression:      compression,
		Workers:          cfg.Index.Workers,
		Log:              log,
		ConfigTOML:       raw,
		CacheVariant:     cache.Variant(cfg.Index.CacheVariant),
		CacheCapacity:    cfg.Index.CacheCapacity,
		LexiconBackend:   index.LexiconBackend(cfg.Index.LexiconBackend),
	}

	idx, err := index.Build(buildCfg, corpus)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	defer idx.Close()
	bar.Finish()

	fmt.Printf(
		"built index %s at %s: %s documents, %s distinct terms\n",
		idx.BuildID(),
		cfg.Index.Dir,
		humanize.Comma(int64(idx.NumDocs())),
		humanize.Comma(int64(idx.NumPrimaryKeys())),
	)
	return nil
}

// countingCorpus wraps a Corpus and advances a progress bar per document,
// following the teacher's progressbar-over-a-driven-loop convention.
type countingCorpus struct {
	inner index.Corpus
	bar   *progressbar.ProgressBar
}

func (c countingCorpus) ForEach(fn func(index.Document) error) error {
	return c.inner.ForEach(func(d index.Document) error {
		_ = c.bar.Add(1)
		return fn(d)
	})
}

func runIndexQuery(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	idx, err := index.Open(cfg.Index.Dir, index.Inverted,
		index.WithCache(cache.Variant(cfg.Index.CacheVariant), cfg.Index.CacheCapacity))
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	fmt.Printf("loaded index: %s documents, %s terms. Enter a term, or \"quit\" to exit.\n",
		humanize.Comma(int64(idx.NumDocs())), humanize.Comma(int64(idx.NumPrimaryKeys())))

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		term := strings.TrimSpace(sc.Text())
		if term == "" {
			continue
		}
		if term == "quit" || term == "exit" {
			break
		}
		printTermStats(idx, term)
	}
	return sc.Err()
}

func printTermStats(idx *index.Index, term string) {
	termID, ok := idx.TermID(term)
	if !ok {
		fmt.Printf("%q is not in the lexicon\n", term)
		return
	}
	rec, err := idx.Postings(termID)
	if err != nil {
		fmt.Printf("error reading postings for %q: %v\n", term, err)
		return
	}

	fmt.Printf("term_id=%d  df=%d  cf=%d  idf=%.4f\n",
		termID, rec.DocFrequency(), rec.TotalCount(), idx.IDF(termID))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"doc_id", "tf"})
	limit := rec.Entries
	if len(limit) > 20 {
		limit = limit[:20]
	}
	for _, e := range limit {
		table.Append([]string{strconv.FormatUint(e.SecondaryID, 10), strconv.FormatUint(e.Count, 10)})
	}
	table.Render()
	if len(rec.Entries) > 20 {
		fmt.Printf("... and %d more postings\n", len(rec.Entries)-20)
	}
}
