package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xrsl/solvx/pkg/cache"
	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/embed"
	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/retry"
	"github.com/xrsl/solvx/pkg/workflow"
)

// Embed stage defaults.
const (
	DefaultEmbedBatchSize = 20
	DefaultRateLimitWait  = 60 * time.Second
	DefaultBatchPause     = 500 * time.Millisecond

	// transient (5xx) failures are retried this many times per batch;
	// rate limits are retried until they clear.
	maxTransientRetries = 3
)

// EmbedOptions configures the embed stage.
type EmbedOptions struct {
	BatchSize     int
	RateLimitWait time.Duration
	BatchPause    time.Duration
	Cache         cache.Store // optional
	Logger        *slog.Logger
}

func (o EmbedOptions) withDefaults() EmbedOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultEmbedBatchSize
	}
	if o.RateLimitWait <= 0 {
		o.RateLimitWait = DefaultRateLimitWait
	}
	if o.BatchPause < 0 {
		o.BatchPause = 0
	}
	o.Logger = clog.Component(o.Logger, "embed")
	return o
}

// InvalidRecord is a record the stage could not embed.
type InvalidRecord struct {
	Key    workflow.Key
	Reason string
}

// EmbedReport is the outcome of the embed stage. Records holds, in input
// order, every record that received a valid embedding.
type EmbedReport struct {
	Records []workflow.Record
	Invalid []InvalidRecord
	Cached  int
	Batches int
}

// EmbeddingText is the text embedded for a record: its task summary
// followed by its problem patterns.
func EmbeddingText(r workflow.Record) string {
	text := r.TaskSummary
	if len(r.ProblemPatterns) > 0 {
		text += "\n\nProblem patterns:\n" + strings.Join(r.ProblemPatterns, "\n")
	}
	return embed.Truncate(text, embed.MaxInputChars)
}

// Embed attaches an embedding to each record. Batches run sequentially; a
// cancelled ctx stops the stage between batches and the partial report is
// returned with the context error.
func Embed(ctx context.Context, e embed.Embedder, records []workflow.Record, opts EmbedOptions) (*EmbedReport, error) {
	opts = opts.withDefaults()
	log := opts.Logger
	report := &EmbedReport{Records: []workflow.Record{}}

	vectors := make([][]float32, len(records))
	texts := make([]string, len(records))
	keys := make([]string, len(records))
	var pending []int

	for i, r := range records {
		texts[i] = EmbeddingText(r)
		if strings.TrimSpace(texts[i]) == "" {
			report.Invalid = append(report.Invalid, InvalidRecord{Key: r.Key(), Reason: "empty task summary"})
			continue
		}
		keys[i] = cache.Key(e.Model(), workflow.EmbeddingDimensions, texts[i])
		if opts.Cache != nil {
			if vec, ok := opts.Cache.Get(keys[i]); ok && corpus.ValidateVector(vec) == nil {
				vectors[i] = vec
				report.Cached++
				continue
			}
		}
		pending = append(pending, i)
	}

	total := (len(pending) + opts.BatchSize - 1) / opts.BatchSize
	log.Info("embedding workflows", "records", len(records), "cached", report.Cached,
		"pending", len(pending), "batches", total)

	var stageErr error
	for b := 0; b < total; b++ {
		if err := ctx.Err(); err != nil {
			stageErr = err
			break
		}
		if b > 0 && opts.BatchPause > 0 {
			if err := sleep(ctx, opts.BatchPause); err != nil {
				stageErr = err
				break
			}
		}

		start := b * opts.BatchSize
		end := min(start+opts.BatchSize, len(pending))
		idx := pending[start:end]

		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vecs, err := embedBatch(ctx, e, batch, opts)
		if err != nil {
			if ctx.Err() != nil {
				stageErr = ctx.Err()
			} else {
				stageErr = fmt.Errorf("batch %d/%d: %w", b+1, total, err)
			}
			break
		}
		report.Batches++

		for j, i := range idx {
			if err := corpus.ValidateVector(vecs[j]); err != nil {
				log.Warn("invalid embedding", "workflow", records[i].Name, "error", err)
				report.Invalid = append(report.Invalid, InvalidRecord{Key: records[i].Key(), Reason: err.Error()})
				continue
			}
			vectors[i] = vecs[j]
			if opts.Cache != nil {
				if err := opts.Cache.Put(keys[i], vecs[j]); err != nil {
					log.Warn("failed to cache embedding", "error", err)
				}
			}
		}
		log.Info("embedded batch", "batch", b+1, "of", total, "size", len(idx))
	}

	for i, r := range records {
		if vectors[i] == nil {
			continue
		}
		r.Embedding = vectors[i]
		report.Records = append(report.Records, r)
	}
	return report, stageErr
}

// embedBatch sends one batch. The request itself is not cancelled by ctx so
// a batch in flight completes; waits between attempts are.
func embedBatch(ctx context.Context, e embed.Embedder, texts []string, opts EmbedOptions) ([][]float32, error) {
	cfg := retry.Fixed(opts.RateLimitWait)
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		opts.Logger.Warn("embedding request failed, waiting", "attempt", attempt, "wait", delay, "error", err)
	}

	transient := 0
	return retry.Do(ctx, cfg, func() ([][]float32, error) {
		vecs, err := e.EmbedBatch(context.WithoutCancel(ctx), texts)
		switch {
		case err == nil:
			if len(vecs) != len(texts) {
				return nil, fmt.Errorf("got %d embeddings for %d inputs", len(vecs), len(texts))
			}
			return vecs, nil
		case errors.Is(err, embed.ErrRateLimited):
			return nil, retry.Retryable(err)
		case retry.IsRetryable(err) && transient < maxTransientRetries:
			transient++
			return nil, err
		default:
			var re *retry.RetryableError
			if errors.As(err, &re) {
				return nil, re.Err
			}
			return nil, err
		}
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
