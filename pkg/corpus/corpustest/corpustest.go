// Package corpustest holds a behavioural test suite shared by the corpus
// store implementations.
package corpustest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/workflow"
)

// Axis returns a unit vector along dimension i.
func Axis(i int) []float32 {
	v := make([]float32, workflow.EmbeddingDimensions)
	v[i] = 1
	return v
}

// Mix returns a*Axis(i) + b*Axis(j).
func Mix(i int, a float32, j int, b float32) []float32 {
	v := make([]float32, workflow.EmbeddingDimensions)
	v[i] = a
	v[j] += b
	return v
}

// Record builds a minimal valid record.
func Record(name string, d workflow.Domain, vec []float32) workflow.Record {
	return workflow.Record{
		Name:            name,
		Domain:          d,
		SubDomain:       "general",
		SourceBook:      "Test Book",
		TaskSummary:     "Summary of " + name + " that is long enough to be kept by the parser.",
		FullPrompt:      "# TASK\n" + name,
		KeyQuestions:    []string{"What is the goal?"},
		ProblemPatterns: []string{"unclear market positioning"},
		SynergyTriggers: []workflow.Domain{workflow.Marketing},
		Complexity:      workflow.Medium,
		Embedding:       vec,
	}
}

// Run exercises a Store implementation. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) corpus.Store) {
	ctx := context.Background()

	seed := func(t *testing.T, s corpus.Store) {
		t.Helper()
		res, err := s.Insert(ctx, []workflow.Record{
			Record("Exact", workflow.Marketing, Axis(0)),
			Record("Close", workflow.Strategy, Mix(0, 0.8, 1, 0.6)),
			Record("Far", workflow.Marketing, Axis(5)),
			Record("Pending", workflow.Sales, nil),
		})
		require.NoError(t, err)
		require.Equal(t, 4, res.Inserted)
		require.Len(t, res.IDs, 4)
	}

	t.Run("empty corpus", func(t *testing.T) {
		s := open(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		results, err := s.Search(ctx, corpus.SearchParams{Vector: Axis(0), Threshold: 0, Limit: 5})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("counts", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		byDomain, err := s.CountByDomain(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[workflow.Domain]int{
			workflow.Marketing: 2,
			workflow.Strategy:  1,
			workflow.Sales:     1,
		}, byDomain)

		embedded, err := s.CountEmbedded(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, embedded)
	})

	t.Run("search ranks above threshold", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		results, err := s.Search(ctx, corpus.SearchParams{Vector: Axis(0), Threshold: 0.5, Limit: 10})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Exact", results[0].Record.Name)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
		assert.Equal(t, "Close", results[1].Record.Name)
		assert.InDelta(t, 0.8, results[1].Similarity, 1e-5)
		for _, r := range results {
			assert.Greater(t, r.Similarity, 0.5)
		}

		got := results[0].Record
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, workflow.Marketing, got.Domain)
		assert.Equal(t, []string{"What is the goal?"}, got.KeyQuestions)
		assert.Equal(t, []workflow.Domain{workflow.Marketing}, got.SynergyTriggers)
		assert.Equal(t, workflow.Medium, got.Complexity)
	})

	t.Run("identity search", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		results, err := s.Search(ctx, corpus.SearchParams{Vector: Axis(5), Threshold: 0, Limit: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Far", results[0].Record.Name)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	})

	t.Run("domain filter", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		results, err := s.Search(ctx, corpus.SearchParams{
			Vector:    Axis(0),
			Threshold: -1,
			Limit:     10,
			Domains:   []workflow.Domain{workflow.Strategy, workflow.Sales},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Close", results[0].Record.Name)
	})

	t.Run("limit", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		results, err := s.Search(ctx, corpus.SearchParams{Vector: Axis(0), Threshold: -1, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = s.Search(ctx, corpus.SearchParams{Vector: Axis(0), Threshold: -1, Limit: 0})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("records without embedding never match", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		results, err := s.Search(ctx, corpus.SearchParams{Vector: Axis(0), Threshold: -1, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, results, 3)
		for _, r := range results {
			assert.NotEqual(t, "Pending", r.Record.Name)
		}
	})

	t.Run("invalid embedding rejected", func(t *testing.T) {
		s := open(t)

		res, err := s.Insert(ctx, []workflow.Record{
			Record("Good", workflow.HR, Axis(2)),
			Record("Bad", workflow.HR, []float32{1, 2, 3}),
		})
		assert.ErrorIs(t, err, corpus.ErrInvalidEmbedding)
		assert.Equal(t, 2, res.Failed)
		assert.Zero(t, res.Inserted)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "failed batch must not be partially stored")
	})

	t.Run("invalid query vector", func(t *testing.T) {
		s := open(t)
		_, err := s.Search(ctx, corpus.SearchParams{Vector: []float32{1, 0}, Limit: 3})
		assert.ErrorIs(t, err, corpus.ErrInvalidEmbedding)
	})

	t.Run("exists and keys", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		ok, err := s.Exists(ctx, workflow.Key{Name: "Exact", Domain: workflow.Marketing})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, workflow.Key{Name: "Exact", Domain: workflow.Sales})
		require.NoError(t, err)
		assert.False(t, ok)

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 4)
		assert.True(t, keys[workflow.Key{Name: "Pending", Domain: workflow.Sales}])
	})

	t.Run("clear", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		require.NoError(t, s.Clear(ctx))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("sample", func(t *testing.T) {
		s := open(t)

		sample, err := s.Sample(ctx)
		require.NoError(t, err)
		assert.Nil(t, sample)

		_, err = s.Insert(ctx, []workflow.Record{Record("Only", workflow.Finance, Axis(3))})
		require.NoError(t, err)

		sample, err = s.Sample(ctx)
		require.NoError(t, err)
		require.NotNil(t, sample)
		assert.Equal(t, "Only", sample.Record.Name)
		assert.Equal(t, workflow.EmbeddingDimensions, sample.Dimensions)
	})
}
