package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrsl/solvx/pkg/cache"
	"github.com/xrsl/solvx/pkg/corpus/corpustest"
	"github.com/xrsl/solvx/pkg/embed"
	"github.com/xrsl/solvx/pkg/retry"
	"github.com/xrsl/solvx/pkg/workflow"
)

// fakeEmbedder returns Axis vectors keyed by the number of the record in
// its summary unless respond overrides a call.
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(call int, texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Model() string { return "test-model" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, texts)
	f.mu.Unlock()

	if f.respond != nil {
		if vecs, err := f.respond(call, texts); vecs != nil || err != nil {
			return vecs, err
		}
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = corpustest.Axis((call*100 + i) % workflow.EmbeddingDimensions)
	}
	return vecs, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testRecords(n int, d workflow.Domain) []workflow.Record {
	records := make([]workflow.Record, n)
	for i := range records {
		records[i] = corpustest.Record(fmt.Sprintf("Workflow %02d", i), d, nil)
	}
	return records
}

func fastEmbedOptions() EmbedOptions {
	return EmbedOptions{BatchSize: 20, RateLimitWait: time.Millisecond, BatchPause: time.Millisecond}
}

func TestEmbeddingText(t *testing.T) {
	r := workflow.Record{TaskSummary: "Summary", ProblemPatterns: []string{"a", "b"}}
	assert.Equal(t, "Summary\n\nProblem patterns:\na\nb", EmbeddingText(r))

	r.ProblemPatterns = nil
	assert.Equal(t, "Summary", EmbeddingText(r))

	r.TaskSummary = strings.Repeat("x", 9000)
	assert.Len(t, EmbeddingText(r), embed.MaxInputChars)
}

func TestEmbedBatches(t *testing.T) {
	e := &fakeEmbedder{}
	records := testRecords(45, workflow.Sales)

	report, err := Embed(context.Background(), e, records, fastEmbedOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 3, e.callCount())
	require.Len(t, report.Records, 45)
	for i, r := range report.Records {
		assert.Equal(t, records[i].Name, r.Name, "order preserved")
		assert.True(t, r.HasEmbedding())
	}
	assert.Nil(t, records[0].Embedding, "input not mutated")
}

func TestEmbedRetriesRateLimit(t *testing.T) {
	e := &fakeEmbedder{respond: func(call int, _ []string) ([][]float32, error) {
		if call < 2 {
			return nil, retry.Retryable(fmt.Errorf("%w: slow down", embed.ErrRateLimited))
		}
		return nil, nil
	}}

	report, err := Embed(context.Background(), e, testRecords(5, workflow.HR), fastEmbedOptions())
	require.NoError(t, err)
	assert.Len(t, report.Records, 5)
	assert.Equal(t, 3, e.callCount())
	assert.Equal(t, 1, report.Batches)
}

func TestEmbedTransientErrorsAreBounded(t *testing.T) {
	e := &fakeEmbedder{respond: func(int, []string) ([][]float32, error) {
		return nil, retry.Retryable(errors.New("embedding API error: status 503"))
	}}

	report, err := Embed(context.Background(), e, testRecords(3, workflow.HR), fastEmbedOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, maxTransientRetries+1, e.callCount())
	assert.Empty(t, report.Records)
}

func TestEmbedFlagsInvalidVectors(t *testing.T) {
	e := &fakeEmbedder{respond: func(_ int, texts []string) ([][]float32, error) {
		vecs := make([][]float32, len(texts))
		for i := range texts {
			vecs[i] = corpustest.Axis(i)
		}
		vecs[1] = []float32{1, 2, 3}
		return vecs, nil
	}}
	records := testRecords(4, workflow.Finance)
	records[3].TaskSummary = ""
	records[3].ProblemPatterns = nil

	report, err := Embed(context.Background(), e, records, fastEmbedOptions())
	require.NoError(t, err)

	require.Len(t, report.Invalid, 2)
	assert.Equal(t, records[3].Key(), report.Invalid[0].Key)
	assert.Equal(t, "empty task summary", report.Invalid[0].Reason)
	assert.Equal(t, records[1].Key(), report.Invalid[1].Key)
	assert.Len(t, report.Records, 2)
}

func TestEmbedUsesCache(t *testing.T) {
	dir := cache.NewDir(t.TempDir())
	records := testRecords(3, workflow.Operations)
	cached := corpustest.Axis(1000)
	key := cache.Key("test-model", workflow.EmbeddingDimensions, EmbeddingText(records[1]))
	require.NoError(t, dir.Put(key, cached))

	e := &fakeEmbedder{}
	opts := fastEmbedOptions()
	opts.Cache = dir

	report, err := Embed(context.Background(), e, records, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cached)
	require.Len(t, e.calls, 1)
	assert.Len(t, e.calls[0], 2)
	assert.Equal(t, cached, report.Records[1].Embedding)

	// a second run is served entirely from the cache
	e2 := &fakeEmbedder{}
	report, err = Embed(context.Background(), e2, records, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Cached)
	assert.Zero(t, e2.callCount())
	assert.Len(t, report.Records, 3)
}

func TestEmbedStopsBetweenBatchesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &fakeEmbedder{respond: func(call int, _ []string) ([][]float32, error) {
		if call == 0 {
			cancel()
		}
		return nil, nil
	}}

	report, err := Embed(ctx, e, testRecords(45, workflow.Strategy), fastEmbedOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, e.callCount())
	assert.Equal(t, 1, report.Batches)
	assert.Len(t, report.Records, 20, "the in-flight batch completes")
}

func TestEmbedNonRetryableError(t *testing.T) {
	e := &fakeEmbedder{respond: func(int, []string) ([][]float32, error) {
		return nil, errors.New("embedding API error: status 400: bad input")
	}}

	_, err := Embed(context.Background(), e, testRecords(2, workflow.Sales), fastEmbedOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1/1")
	assert.Equal(t, 1, e.callCount())
}
