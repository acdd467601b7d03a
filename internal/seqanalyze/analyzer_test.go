package seqanalyze

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func wordOnly(seq Sequence, t int, coll Collector) {
	coll.Add("w[t]="+seq[t].Symbol, 1)
}

func TestAnalyzeAssignsDenseIDs(t *testing.T) {
	a := New()
	a.AddObservationFunc(wordOnly)

	seq := NewTagged([]string{"the", "cat", "sat"}, []string{"D", "N", "V"})
	a.Analyze(seq)

	require.Equal(t, 3, a.NumFeatures())
	require.Equal(t, 3, a.NumLabels())
	for i, obs := range seq {
		require.True(t, obs.HasTag)
		require.Len(t, obs.Features, 1)
		require.Equal(t, float64(1), obs.Features[0].Weight)
		_ = i
	}
}

func TestAnalyzeConstDiscardsUnseenFeatures(t *testing.T) {
	a := New()
	a.AddObservationFunc(wordOnly)

	train := NewTagged([]string{"the", "cat"}, []string{"D", "N"})
	a.Analyze(train)

	test := NewUntagged([]string{"the", "dog"})
	a.AnalyzeConst(test)

	require.Len(t, test[0].Features, 1, "known word should produce a feature")
	require.Len(t, test[1].Features, 0, "unseen word should be silently discarded")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	a := New()
	a.AddObservationFunc(wordOnly)
	seq := NewTagged([]string{"the", "cat"}, []string{"D", "N"})
	a.Analyze(seq)

	dir := t.TempDir()
	featPath := filepath.Join(dir, "feature.mapping")
	labelPath := filepath.Join(dir, "label.mapping")
	require.NoError(t, a.Save(featPath, labelPath))

	b := New()
	require.NoError(t, b.Load(featPath, labelPath))
	require.Equal(t, a.NumFeatures(), b.NumFeatures())
	require.Equal(t, a.NumLabels(), b.NumLabels())

	id, ok := b.LabelConst("D")
	require.True(t, ok)
	tag, ok := b.Tag(id)
	require.True(t, ok)
	require.Equal(t, "D", tag)
}

func TestDedupeSumsWeights(t *testing.T) {
	feats := dedupe([]Feature{{ID: 1, Weight: 1}, {ID: 1, Weight: 2}, {ID: 2, Weight: 1}})
	require.Len(t, feats, 2)
	require.Equal(t, float64(3), feats[0].Weight)
}
