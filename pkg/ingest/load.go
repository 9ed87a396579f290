package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xrsl/solvx/pkg/corpus"
	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/workflow"
)

// DefaultLoadBatchSize is the number of records inserted per transaction.
const DefaultLoadBatchSize = 50

// ErrLoadFailed is returned when at least one record could not be inserted.
var ErrLoadFailed = errors.New("failed to load records")

// LoadOptions configures the load stage.
type LoadOptions struct {
	BatchSize int
	// ClearFirst deletes every stored record before inserting.
	ClearFirst bool
	// SkipExisting skips records whose (name, domain) is already stored.
	SkipExisting bool
	// DryRun reports what would be inserted without writing.
	DryRun bool
	// AllowUnembedded inserts records without an embedding; they are stored
	// with no vector and never match a search.
	AllowUnembedded bool
	Logger          *slog.Logger
}

// LoadReport is the outcome of the load stage.
type LoadReport struct {
	Input      int
	Excluded   []InvalidRecord
	Duplicates []workflow.Key // keys appearing more than once in the input
	Skipped    int            // already stored
	Inserted   int
	Failed     int
	Batches    int
	DryRun     bool

	// Distribution counts the records inserted, or that would be inserted
	// on a dry run, per domain.
	Distribution map[workflow.Domain]int

	// Corpus totals after the load. Not set on a dry run.
	Total    int
	ByDomain map[workflow.Domain]int
}

// Load writes records into store in batches. Batches run in order and a
// failed batch does not stop the ones after it; if any record failed the
// report is returned together with ErrLoadFailed.
//
// On a dry run store may be nil; when set it is only read.
func Load(ctx context.Context, store corpus.Store, records []workflow.Record, opts LoadOptions) (*LoadReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultLoadBatchSize
	}
	log := clog.Component(opts.Logger, "load")
	report := &LoadReport{Input: len(records), DryRun: opts.DryRun}

	valid := validRecords(records, opts.AllowUnembedded, report)
	for _, ex := range report.Excluded {
		log.Warn("excluding record", "workflow", ex.Key, "reason", ex.Reason)
	}
	report.Duplicates = duplicateKeys(valid)
	for _, k := range report.Duplicates {
		log.Warn("duplicate workflow in input", "workflow", k)
	}

	if store == nil && !opts.DryRun {
		return report, errors.New("no corpus store configured")
	}

	if opts.ClearFirst && !opts.DryRun {
		log.Info("clearing corpus")
		if err := store.Clear(ctx); err != nil {
			return report, fmt.Errorf("failed to clear corpus: %w", err)
		}
	}

	if opts.SkipExisting && !opts.ClearFirst && store != nil {
		stored, err := storedFilter(ctx, store, valid)
		if err != nil {
			return report, fmt.Errorf("failed to read existing workflows: %w", err)
		}
		kept := make([]workflow.Record, 0, len(valid))
		for _, r := range valid {
			if stored(r.Key()) {
				report.Skipped++
				continue
			}
			kept = append(kept, r)
		}
		valid = kept
		log.Info("skipping existing workflows", "skipped", report.Skipped, "remaining", len(valid))
	}

	if opts.DryRun {
		report.Distribution = workflow.Distribution(valid)
		return report, nil
	}

	report.Distribution = make(map[workflow.Domain]int)
	for start := 0; start < len(valid); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+opts.BatchSize, len(valid))
		batch := valid[start:end]
		report.Batches++

		res, err := store.Insert(ctx, batch)
		if err != nil {
			log.Error("batch insert failed", "batch", report.Batches, "size", len(batch), "error", err)
			report.Failed += len(batch)
			continue
		}
		report.Inserted += res.Inserted
		report.Failed += res.Failed
		if res.Failed == 0 {
			for _, r := range batch {
				report.Distribution[r.Domain]++
			}
		}
		log.Info("inserted batch", "batch", report.Batches, "inserted", res.Inserted)
	}

	var err error
	if report.Total, err = store.Count(ctx); err != nil {
		return report, fmt.Errorf("failed to count workflows: %w", err)
	}
	if report.ByDomain, err = store.CountByDomain(ctx); err != nil {
		return report, fmt.Errorf("failed to count workflows: %w", err)
	}

	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d", ErrLoadFailed, report.Failed, report.Failed+report.Inserted)
	}
	return report, nil
}

// keyLookupLimit is the largest input checked key by key. Bigger loads read
// every stored key once.
const keyLookupLimit = 10

// storedFilter reports which of records are already in store.
func storedFilter(ctx context.Context, store corpus.Store, records []workflow.Record) (func(workflow.Key) bool, error) {
	if len(records) > keyLookupLimit {
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, err
		}
		return func(k workflow.Key) bool { return keys[k] }, nil
	}

	found := make(map[workflow.Key]bool, len(records))
	for _, r := range records {
		k := r.Key()
		if _, done := found[k]; done {
			continue
		}
		ok, err := store.Exists(ctx, k)
		if err != nil {
			return nil, err
		}
		found[k] = ok
	}
	return func(k workflow.Key) bool { return found[k] }, nil
}

func validRecords(records []workflow.Record, allowUnembedded bool, report *LoadReport) []workflow.Record {
	valid := make([]workflow.Record, 0, len(records))
	for _, r := range records {
		reason := ""
		switch {
		case r.Name == "":
			reason = "missing name"
		case !r.Domain.Valid():
			reason = fmt.Sprintf("unknown domain %q", r.Domain)
		case r.Embedding == nil && !allowUnembedded:
			reason = "missing embedding"
		case r.Embedding != nil:
			if err := corpus.ValidateVector(r.Embedding); err != nil {
				reason = err.Error()
			}
		}
		if reason != "" {
			report.Excluded = append(report.Excluded, InvalidRecord{Key: r.Key(), Reason: reason})
			continue
		}
		valid = append(valid, r)
	}
	return valid
}

func duplicateKeys(records []workflow.Record) []workflow.Key {
	seen := make(map[workflow.Key]int, len(records))
	var dups []workflow.Key
	for _, r := range records {
		k := r.Key()
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}
