// Package match retrieves the workflows most relevant to a problem
// statement. Match never fails: retrieval only enriches a downstream
// response, so errors and timeouts degrade to an empty result.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/embed"
	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/workflow"
)

// DefaultTimeout bounds a single Match call.
const DefaultTimeout = 10 * time.Second

// Profile is a similarity threshold and a result limit.
type Profile struct {
	Threshold float64
	Limit     int
}

// Embedder is the part of embed.Embedder the matcher needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Matcher struct {
	embedder      Embedder
	searcher      corpus.Searcher
	timeout       time.Duration
	includePrompt bool
	log           *slog.Logger
}

type Option func(*Matcher)

func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithPrompt controls whether matches carry the full workflow prompt.
func WithPrompt(include bool) Option {
	return func(m *Matcher) { m.includePrompt = include }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

func New(e Embedder, s corpus.Searcher, opts ...Option) *Matcher {
	m := &Matcher{
		embedder:      e,
		searcher:      s,
		timeout:       DefaultTimeout,
		includePrompt: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = clog.Component(m.log, "matcher")
	return m
}

// Search embeds problem and queries the corpus, returning any error.
func (m *Matcher) Search(ctx context.Context, problem string, domains []workflow.Domain, p Profile) ([]workflow.Match, error) {
	if strings.TrimSpace(problem) == "" {
		return nil, errors.New("problem statement is required")
	}
	if p.Limit <= 0 {
		return []workflow.Match{}, nil
	}

	vec, err := m.embedder.Embed(ctx, embed.Truncate(problem, embed.MaxInputChars))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := m.searcher.Search(ctx, corpus.SearchParams{
		Vector:    vec,
		Threshold: p.Threshold,
		Limit:     p.Limit,
		Domains:   domains,
	})
	if err != nil {
		return nil, fmt.Errorf("search corpus: %w", err)
	}

	matches := make([]workflow.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, workflow.NewMatch(r.Record, r.Similarity, m.includePrompt))
	}
	return matches, nil
}

// Match is Search with a timeout that logs failures and returns an empty
// list instead of an error.
func (m *Matcher) Match(ctx context.Context, problem string, domains []workflow.Domain, p Profile) []workflow.Match {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	matches, err := m.Search(ctx, problem, domains, p)
	if err != nil {
		m.log.Warn("workflow matching failed, continuing without matches",
			"error", err,
			"domains", domains,
		)
		return []workflow.Match{}
	}
	m.log.Debug("matched workflows", "count", len(matches), "threshold", p.Threshold)
	return matches
}
