package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/textkit/textkit/internal/cache"
	"github.com/textkit/textkit/internal/config"
	"github.com/textkit/textkit/internal/index"
	"github.com/textkit/textkit/internal/rank"
)

var rankQueryFlag string

var rankCmd = &cobra.Command{
	Use:   "rank <config.toml>",
	Short: "Run a configured ranker over an index, interactively or via --query",
	Args:  cobra.ExactArgs(1),
	RunE:  runRank,
}

func init() {
	rankCmd.Flags().StringVar(&rankQueryFlag, "query", "", "run a single query non-interactively instead of reading from stdin")
	rootCmd.AddCommand(rankCmd)
}

// buildRanker constructs the configured Ranker (spec 4.5's tagged-variant
// family), validating parameters the way config.Validate does for the
// ranker-specific ranges.
func buildRanker(cfg config.RankerConfig) (rank.Ranker, error) {
	switch cfg.Method {
	case "bm25", "":
		return rank.NewBM25(cfg.K1, cfg.B, cfg.K3)
	case "pivoted-length":
		return rank.NewPivotedLength(cfg.S)
	case "dirichlet-prior":
		return rank.NewDirichletPrior(cfg.Mu), nil
	case "jelinek-mercer":
		return rank.NewJelinekMercer(cfg.Lambda), nil
	default:
		return nil, fmt.Errorf("unknown ranker.method %q", cfg.Method)
	}
}

func runRank(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	indexDir := cfg.Ranker.IndexDir
	if indexDir == "" {
		indexDir = cfg.Index.Dir
	}
	idx, err := index.Open(indexDir, index.Inverted,
		index.WithCache(cache.Variant(cfg.Index.CacheVariant), cfg.Index.CacheCapacity))
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	topK := cfg.Ranker.TopK
	if topK <= 0 {
		topK = 10
	}

	var run func(terms []string) ([]rank.Document, error)
	if cfg.Ranker.Method == "kl-divergence-prf" {
		if cfg.Ranker.ForwardIndexDir == "" {
			return fmt.Errorf("ranker.method kl-divergence-prf requires ranker.forward-index-dir")
		}
		fwd, err := index.Open(cfg.Ranker.ForwardIndexDir, index.Forward)
		if err != nil {
			return fmt.Errorf("opening forward index: %w", err)
		}
		defer fwd.Close()

		prf := rank.DefaultKLDivergencePRF(fwd)
		if cfg.Ranker.PRFAlpha > 0 {
			prf.Alpha = cfg.Ranker.PRFAlpha
		}
		if cfg.Ranker.PRFLambda > 0 {
			prf.Lambda = cfg.Ranker.PRFLambda
		}
		if cfg.Ranker.PRFTopK > 0 {
			prf.K = cfg.Ranker.PRFTopK
		}
		if cfg.Ranker.PRFMaxTerms > 0 {
			prf.MaxTerms = cfg.Ranker.PRFMaxTerms
		}
		if cfg.Ranker.PRFMaxIters > 0 {
			prf.MaxIters = cfg.Ranker.PRFMaxIters
		}
		if cfg.Ranker.PRFDelta > 0 {
			prf.Delta = cfg.Ranker.PRFDelta
		}
		run = func(terms []string) ([]rank.Document, error) {
			return prf.Rank(idx, termsToQuery(idx, terms), topK)
		}
	} else {
		ranker, err := buildRanker(cfg.Ranker)
		if err != nil {
			return err
		}
		run = func(terms []string) ([]rank.Document, error) {
			return rank.Rank(idx, ranker, termsToQuery(idx, terms), topK)
		}
	}

	if rankQueryFlag != "" {
		results, err := run(strings.Fields(rankQueryFlag))
		if err != nil {
			return err
		}
		printResults(results)
		return nil
	}

	fmt.Println("enter a query, or \"quit\" to exit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		results, err := run(strings.Fields(line))
		if err != nil {
			fmt.Println(err)
			continue
		}
		printResults(results)
	}
	return sc.Err()
}

// termsToQuery turns raw query terms into a spec 4.5 multiset (qtf per
// term), dropping terms absent from the lexicon (spec 4.2: unknown keys
// are not an error).
func termsToQuery(idx *index.Index, terms []string) rank.Query {
	q := make(rank.Query)
	for _, term := range terms {
		id, ok := idx.TermID(term)
		if !ok {
			continue
		}
		q[id]++
	}
	return q
}

func printResults(results []rank.Document) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"rank", "doc_id", "score"})
	for i, d := range results {
		table.Append([]string{strconv.Itoa(i + 1), strconv.FormatUint(d.DocID, 10), strconv.FormatFloat(d.Score, 'f', 4, 64)})
	}
	table.Render()
}
