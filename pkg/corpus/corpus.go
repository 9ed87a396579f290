// Package corpus defines the workflow corpus: a persistent collection of
// workflow records searchable by cosine similarity.
//
// Two implementations exist: corpus/sqlite for local use and tests, and
// corpus/postgres (pgvector) for production. Both expose the same read
// contract, a thresholded, optionally domain-filtered nearest-neighbour
// query ranked by similarity.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/xrsl/solvx/pkg/workflow"
)

// ErrInvalidEmbedding is returned for vectors that are not exactly
// workflow.EmbeddingDimensions long or have zero magnitude.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// Searcher is the read side used on the request path.
type Searcher interface {
	Search(ctx context.Context, p SearchParams) ([]Result, error)
}

// Store is a workflow corpus.
type Store interface {
	Searcher

	// Insert writes one batch atomically. On error nothing from the batch
	// is stored and the result reports every record as failed.
	Insert(ctx context.Context, records []workflow.Record) (InsertResult, error)
	Exists(ctx context.Context, key workflow.Key) (bool, error)
	Keys(ctx context.Context) (map[workflow.Key]bool, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	CountByDomain(ctx context.Context) (map[workflow.Domain]int, error)
	CountEmbedded(ctx context.Context) (int, error)
	Sample(ctx context.Context) (*Sample, error)
	Close() error
}

// SearchParams is a nearest-neighbour query. Threshold is exclusive.
// An empty Domains slice means no domain filter.
type SearchParams struct {
	Vector    []float32
	Threshold float64
	Limit     int
	Domains   []workflow.Domain
}

// Result is a record with its cosine similarity to the query.
type Result struct {
	Record     workflow.Record
	Similarity float64
}

// InsertResult reports the outcome of one Insert call.
type InsertResult struct {
	Inserted int
	Failed   int
	IDs      []string
}

// Sample is one stored record without its vector, plus the stored vector size.
type Sample struct {
	Record     workflow.Record
	Dimensions int
}

// ValidateVector checks a query or record vector.
func ValidateVector(v []float32) error {
	if len(v) != workflow.EmbeddingDimensions {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidEmbedding, len(v), workflow.EmbeddingDimensions)
	}
	if norm(v) == 0 {
		return fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	return nil
}

// ValidateRecords checks a batch before insertion. Records without an
// embedding are allowed; they are stored without a vector.
func ValidateRecords(records []workflow.Record) error {
	for i, r := range records {
		if r.Name == "" {
			return fmt.Errorf("record %d: name is required", i)
		}
		if !r.Domain.Valid() {
			return fmt.Errorf("record %d (%s): invalid domain %q", i, r.Name, r.Domain)
		}
		if r.Embedding == nil {
			continue
		}
		if err := ValidateVector(r.Embedding); err != nil {
			return fmt.Errorf("record %d (%s): %w", i, r.Name, err)
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b. ok is false when the
// vectors differ in length or either has zero magnitude.
func Cosine(a, b []float32) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// Rank sorts results by similarity descending (ties by name) and keeps at
// most limit entries.
func Rank(results []Result, limit int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Record.Name < results[j].Record.Name
	})
	if limit < 0 {
		limit = 0
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// DomainStrings converts domains for use as query parameters.
func DomainStrings(ds []workflow.Domain) []string {
	if len(ds) == 0 {
		return nil
	}
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}
