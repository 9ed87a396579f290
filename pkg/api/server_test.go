package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xrsl/solvx/pkg/classify"
	"github.com/xrsl/solvx/pkg/enrich"
	"github.com/xrsl/solvx/pkg/match"
	"github.com/xrsl/solvx/pkg/workflow"
)

type mockClassifier struct{ mock.Mock }

func (m *mockClassifier) ClassifyOrDefault(ctx context.Context, problem string) (workflow.Classification, bool) {
	args := m.Called(ctx, problem)
	return args.Get(0).(workflow.Classification), args.Bool(1)
}

type mockMatcher struct{ mock.Mock }

func (m *mockMatcher) Match(ctx context.Context, problem string, domains []workflow.Domain, p match.Profile) []workflow.Match {
	args := m.Called(ctx, problem, domains, p)
	return args.Get(0).([]workflow.Match)
}

type mockEnricher struct{ mock.Mock }

func (m *mockEnricher) Enrich(ctx context.Context, problem string, p match.Profile) enrich.Result {
	args := m.Called(ctx, problem, p)
	return args.Get(0).(enrich.Result)
}

type fakeStats struct {
	total, embedded int
	byDomain        map[workflow.Domain]int
	err             error
}

func (f fakeStats) Count(context.Context) (int, error) { return f.total, f.err }

func (f fakeStats) CountByDomain(context.Context) (map[workflow.Domain]int, error) {
	return f.byDomain, f.err
}

func (f fakeStats) CountEmbedded(context.Context) (int, error) { return f.embedded, f.err }

type fixture struct {
	classifier *mockClassifier
	matcher    *mockMatcher
	enricher   *mockEnricher
	server     *Server
}

func newFixture(stats Stats) *fixture {
	f := &fixture{
		classifier: &mockClassifier{},
		matcher:    &mockMatcher{},
		enricher:   &mockEnricher{},
	}
	f.server = NewServer(Deps{
		Classifier: f.classifier,
		Matcher:    f.matcher,
		Enricher:   f.enricher,
		Stats:      stats,
		Profiles:   map[string]match.Profile{ProfileSearch: {Threshold: 0.7, Limit: 3}},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := newFixture(fakeStats{}).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestClassify(t *testing.T) {
	f := newFixture(fakeStats{})
	cls := workflow.Classification{
		Symptoms:         []string{"flat revenue"},
		Challenges:       []string{"pricing power"},
		PrimaryDomain:    workflow.Sales,
		SecondaryDomains: []workflow.Domain{workflow.Finance},
		Intent:           workflow.Decide,
		Confidence:       0.8,
	}
	f.classifier.On("ClassifyOrDefault", mock.Anything, "Revenue is flat").Return(cls, true)

	rec := f.do(t, http.MethodPost, "/api/classify", `{"problem":"Revenue is flat"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[classifyResponse](t, rec)
	assert.False(t, got.Fallback)
	assert.Equal(t, workflow.Sales, got.PrimaryDomain)
	assert.Equal(t, workflow.Decide, got.Intent)
}

func TestClassifyFallback(t *testing.T) {
	f := newFixture(fakeStats{})
	f.classifier.On("ClassifyOrDefault", mock.Anything, mock.Anything).
		Return(workflow.DefaultClassification(), false)

	rec := f.do(t, http.MethodPost, "/api/classify", `{"problem":"Revenue is flat"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[classifyResponse](t, rec)
	assert.True(t, got.Fallback)
	assert.Equal(t, workflow.Explore, got.Intent)
	assert.Empty(t, got.SecondaryDomains)
}

// stalledClient is a completion provider that only returns when ctx ends.
type stalledClient struct{}

func (stalledClient) Complete(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (stalledClient) Close() {}

func TestClassifyTimesOutToDefault(t *testing.T) {
	srv := NewServer(Deps{
		Classifier: classify.New(stalledClient{}, classify.WithTimeout(50*time.Millisecond)),
		Matcher:    &mockMatcher{},
		Enricher:   &mockEnricher{},
		Stats:      fakeStats{},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(`{"problem":"Churn is rising"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.Handler().ServeHTTP(rec, req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("classify request outlived the classifier timeout")
	}

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[classifyResponse](t, rec)
	assert.True(t, got.Fallback)
	assert.Equal(t, workflow.DefaultClassification(), got.Classification)
}

func TestEmptyProblemIsBadRequest(t *testing.T) {
	f := newFixture(fakeStats{})
	for _, path := range []string{"/api/classify", "/api/enrich", "/api/workflows/search", "/api/workflows/match"} {
		for _, body := range []string{`{"problem":""}`, `{"problem":"   "}`, `{}`, ""} {
			rec := f.do(t, http.MethodPost, path, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "%s %q", path, body)
		}
	}
	f.classifier.AssertNotCalled(t, "ClassifyOrDefault", mock.Anything, mock.Anything)
	f.matcher.AssertNotCalled(t, "Match", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMalformedBody(t *testing.T) {
	rec := newFixture(fakeStats{}).do(t, http.MethodPost, "/api/classify", `{"problem":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchWorkflows(t *testing.T) {
	f := newFixture(fakeStats{})
	matches := []workflow.Match{{ID: "1", Name: "Pricing Review", Domain: workflow.Sales, Similarity: 0.82}}
	f.matcher.On("Match", mock.Anything, "Deals stall",
		[]workflow.Domain{workflow.Sales}, match.Profile{Threshold: 0.7, Limit: 5}).Return(matches)

	rec := f.do(t, http.MethodPost, "/api/workflows/search",
		`{"problem":"Deals stall","domains":["Sales"],"limit":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[workflowsResponse](t, rec)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, "Pricing Review", got.Workflows[0].Name)
	f.matcher.AssertExpectations(t)
}

func TestSearchWorkflowsInvalidInput(t *testing.T) {
	f := newFixture(fakeStats{})
	for _, body := range []string{
		`{"problem":"x","domains":["legal"]}`,
		`{"problem":"x","limit":50}`,
	} {
		rec := f.do(t, http.MethodPost, "/api/workflows/search", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestMatchWorkflowsProfiles(t *testing.T) {
	f := newFixture(fakeStats{})
	f.matcher.On("Match", mock.Anything, "p", []workflow.Domain{}, match.Profile{Threshold: 0.65, Limit: 3}).
		Return([]workflow.Match{}).Once()
	f.matcher.On("Match", mock.Anything, "p", []workflow.Domain{}, match.Profile{Threshold: 0.65, Limit: 4}).
		Return([]workflow.Match{}).Once()

	rec := f.do(t, http.MethodPost, "/api/workflows/match", `{"problem":"p"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"workflows":[],"count":0}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/workflows/match", `{"problem":"p","profile":"document"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/workflows/match", `{"problem":"p","profile":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.matcher.AssertExpectations(t)
}

func TestEnrich(t *testing.T) {
	f := newFixture(fakeStats{})
	res := enrich.Result{
		Classification: workflow.DefaultClassification(),
		Matches:        []workflow.Match{},
	}
	f.enricher.On("Enrich", mock.Anything, "Churn is rising", match.Profile{Threshold: 0.65, Limit: 4}).Return(res)

	rec := f.do(t, http.MethodPost, "/api/enrich", `{"problem":"Churn is rising"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[enrich.Result](t, rec)
	assert.False(t, got.Classified)
	assert.Equal(t, workflow.Explore, got.Classification.Intent)
	f.enricher.AssertExpectations(t)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name    string
		stats   fakeStats
		ready   bool
		message string
	}{
		{"empty", fakeStats{byDomain: map[workflow.Domain]int{}}, false, "corpus is empty; run the ingestion pipeline"},
		{"unembedded", fakeStats{total: 2, byDomain: map[workflow.Domain]int{workflow.HR: 2}}, false,
			"no workflow has an embedding; run the embed stage"},
		{"partial", fakeStats{total: 2, embedded: 1, byDomain: map[workflow.Domain]int{workflow.HR: 2}}, true,
			"some workflows have no embedding and will not match"},
		{"ready", fakeStats{total: 2, embedded: 2, byDomain: map[workflow.Domain]int{workflow.HR: 2}}, true, "ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFixture(tt.stats).do(t, http.MethodGet, "/api/workflows/status", "")
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode[statusResponse](t, rec)
			assert.Equal(t, tt.ready, got.Ready)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, tt.stats.total, got.Total)
		})
	}
}

func TestStatusCorpusUnavailable(t *testing.T) {
	rec := newFixture(fakeStats{err: errors.New("dial tcp: refused")}).do(t, http.MethodGet, "/api/workflows/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}
