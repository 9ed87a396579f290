// Package enrich runs the request-path pipeline: classify a problem, then
// retrieve workflows restricted to the classified domains.
package enrich

import (
	"context"

	"github.com/xrsl/solvx/pkg/match"
	"github.com/xrsl/solvx/pkg/workflow"
)

// Classifier is satisfied by *classify.Classifier.
type Classifier interface {
	ClassifyOrDefault(ctx context.Context, problem string) (workflow.Classification, bool)
}

// Matcher is satisfied by *match.Matcher.
type Matcher interface {
	Match(ctx context.Context, problem string, domains []workflow.Domain, p match.Profile) []workflow.Match
}

// Result is the enrichment handed to document generation.
type Result struct {
	Classification workflow.Classification `json:"classification"`
	Classified     bool                    `json:"classified"`
	Matches        []workflow.Match        `json:"matches"`
}

type Enricher struct {
	classifier Classifier
	matcher    Matcher
}

func New(c Classifier, m Matcher) *Enricher {
	return &Enricher{classifier: c, matcher: m}
}

// Enrich never fails. Without a classification the search is unfiltered.
func (e *Enricher) Enrich(ctx context.Context, problem string, p match.Profile) Result {
	c, ok := e.classifier.ClassifyOrDefault(ctx, problem)
	return Result{
		Classification: c,
		Classified:     ok,
		Matches:        e.matcher.Match(ctx, problem, c.Domains(), p),
	}
}
