package rank

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/textkit/textkit/internal/index"
)

type sliceCorpus []index.Document

func (c sliceCorpus) ForEach(fn func(index.Document) error) error {
	for _, d := range c {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func tokenize(s string) []string {
	var toks []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				toks = append(toks, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, s[start:])
	}
	return toks
}

// buildRankTestIndex builds both the Inverted and Forward views of the
// same toy corpus ("the cat sat" / "the dog ran") with a single worker,
// so term_id/doc_id assignment order is identical between the two builds
// (spec 5's corpus-order doc_id contract applies term_ids the same way).
func buildRankTestIndex(t *testing.T) (inv, fwd *index.Index) {
	t.Helper()
	corpus := sliceCorpus{
		{Path: "d1.txt", Tokens: tokenize("the cat sat")},
		{Path: "d2.txt", Tokens: tokenize("the dog ran")},
	}

	invIdx, err := index.Build(index.BuildConfig{
		Dir:              filepath.Join(t.TempDir(), "inv"),
		Kind:             index.Inverted,
		ChunkBudgetBytes: 1 << 20,
		Workers:          1,
		Log:              zerolog.Nop(),
	}, corpus)
	require.NoError(t, err)

	fwdIdx, err := index.Build(index.BuildConfig{
		Dir:              filepath.Join(t.TempDir(), "fwd"),
		Kind:             index.Forward,
		ChunkBudgetBytes: 1 << 20,
		Workers:          1,
		Log:              zerolog.Nop(),
	}, corpus)
	require.NoError(t, err)

	return invIdx, fwdIdx
}

// TestBM25MonotonicInTermFrequency is spec 8's "BM25 monotonicity": for
// fixed N, df, dl, qtf, avg_dl, the contribution is non-decreasing in tf.
func TestBM25MonotonicInTermFrequency(t *testing.T) {
	bm25, err := NewBM25(1.2, 0.75, 500)
	require.NoError(t, err)

	base := ScoreData{
		DocCount:        5,
		NumDocs:         100,
		DocSize:         50,
		AvgDL:           50,
		QueryTermWeight: 1,
	}

	var prev float64
	for tf := uint64(1); tf <= 10; tf++ {
		sd := base
		sd.DocTermCount = tf
		score := bm25.ScoreOne(sd)
		require.GreaterOrEqualf(t, score, prev, "tf=%d scored lower than tf=%d", tf, tf-1)
		prev = score
	}
}

// TestBM25MonotonicInIDF is the other half of spec 8's "BM25 monotonicity":
// for fixed N, tf, dl, qtf, avg_dl, the contribution is non-increasing in
// df (rarer terms -- lower df -- score at least as high).
func TestBM25MonotonicInIDF(t *testing.T) {
	bm25, err := NewBM25(1.2, 0.75, 500)
	require.NoError(t, err)

	base := ScoreData{
		NumDocs:         100,
		DocSize:         50,
		AvgDL:           50,
		DocTermCount:    3,
		QueryTermWeight: 1,
	}

	first := true
	var prev float64
	for df := uint64(1); df <= 50; df++ {
		sd := base
		sd.DocCount = df
		score := bm25.ScoreOne(sd)
		if !first {
			require.LessOrEqualf(t, score, prev+1e-12, "df=%d scored higher than df=%d", df, df-1)
		}
		first = false
		prev = score
	}
}

// TestRankSumsPerTermContributions is spec 8's "Ranker sum" property:
// Rank()'s per-document score is InitialScore plus the sum, over query
// terms present in that document's postings, of ScoreOne -- no hidden
// cross-term state for a stateless ranker like BM25.
func TestRankSumsPerTermContributions(t *testing.T) {
	inv, fwd := buildRankTestIndex(t)
	defer inv.Close()
	defer fwd.Close()

	bm25, err := NewBM25(1.2, 0.75, 500)
	require.NoError(t, err)

	theID, ok := inv.TermID("the")
	require.True(t, ok)
	catID, ok := inv.TermID("cat")
	require.True(t, ok)

	query := Query{theID: 1, catID: 2}
	k := 10
	results, err := Rank(inv, bm25, query, k)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	queryLength := 0.0
	for _, qtf := range query {
		queryLength += qtf
	}
	numDocs := inv.NumDocs()
	avgDL := inv.AverageDocLength()
	totalTerms := inv.TotalTerms()

	for _, d := range results {
		expected := bm25.InitialScore(queryLength, inv.DocLength(d.DocID))
		for termID, qtf := range query {
			rec, err := inv.Postings(termID)
			require.NoError(t, err)
			var tf uint64
			for _, e := range rec.Entries {
				if e.SecondaryID == d.DocID {
					tf = e.Count
				}
			}
			if tf == 0 {
				continue
			}
			expected += bm25.ScoreOne(ScoreData{
				DocCount:        uint64(rec.DocFrequency()),
				CorpusTermCount: rec.TotalCount(),
				NumDocs:         numDocs,
				DocSize:         inv.DocLength(d.DocID),
				AvgDL:           avgDL,
				DocTermCount:    tf,
				QueryTermWeight: qtf,
				QueryLength:     queryLength,
				TotalTerms:      totalTerms,
			})
		}
		require.InDeltaf(t, expected, d.Score, 1e-9, "doc %d", d.DocID)
	}
}

// TestBM25RanksDocContainingQueryTermAboveDocWithout is end-to-end
// scenario 3: BM25 ranking a two-document toy corpus with
// k1=1.2,b=0.75,k3=500, query "cat" -- D1 ("the cat sat") outranks D2
// ("the dog ran") since D2 contributes nothing for "cat".
func TestBM25RanksDocContainingQueryTermAboveDocWithout(t *testing.T) {
	inv, fwd := buildRankTestIndex(t)
	defer inv.Close()
	defer fwd.Close()

	bm25, err := NewBM25(1.2, 0.75, 500)
	require.NoError(t, err)

	catID, ok := inv.TermID("cat")
	require.True(t, ok)

	results, err := Rank(inv, bm25, Query{catID: 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	d1ID, ok := fwd.TermID("d1.txt")
	require.True(t, ok)
	require.Equal(t, d1ID, results[0].DocID)
	require.Greater(t, results[0].Score, 0.0)
}

// TestKLDivergencePRFLambdaOneDegeneratesToInitialRanking is end-to-end
// scenario 6 (EM log-likelihood monotonicity is not checked here): with
// lambda=1.0, every feedback term's posterior collapses to the background model
// (pzw=1), so fitMixture's feedback weights are all zero and, with
// alpha=0 so the expanded query's original-term weights are untouched,
// the reranked results equal the initial ranker's unexpanded results.
func TestKLDivergencePRFLambdaOneDegeneratesToInitialRanking(t *testing.T) {
	inv, fwd := buildRankTestIndex(t)
	defer inv.Close()
	defer fwd.Close()

	theID, ok := inv.TermID("the")
	require.True(t, ok)
	query := Query{theID: 1}

	bm25, err := NewBM25(1.2, 0.75, 500)
	require.NoError(t, err)

	prf := &KLDivergencePRF{
		Fwd:           fwd,
		InitialRanker: bm25,
		Alpha:         0,
		Lambda:        1.0,
		K:             2,
		MaxTerms:      50,
		MaxIters:      50,
		Delta:         1e-5,
	}

	expanded, err := prf.Rank(inv, query, 10)
	require.NoError(t, err)

	unexpanded, err := Rank(inv, bm25, query, 10)
	require.NoError(t, err)

	require.Equal(t, unexpanded, expanded)
}
