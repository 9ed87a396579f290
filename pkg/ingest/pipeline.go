package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/embed"
	clog "github.com/xrsl/solvx/pkg/log"
)

// Pipeline runs parse, embed and load in sequence, writing a checkpoint
// after each of the first two stages.
type Pipeline struct {
	Parser   *Parser
	Embedder embed.Embedder // unused on dry runs
	Store    corpus.Store   // nil only for dry runs
	Logger   *slog.Logger
}

type PipelineOptions struct {
	Source    string
	OutputDir string
	Embed     EmbedOptions
	Load      LoadOptions
}

// PipelineReport holds the report of every stage that ran.
type PipelineReport struct {
	Parse *ParseReport
	Embed *EmbedReport
	Load  *LoadReport
}

// Run executes the pipeline. A dry run makes no embedding requests: it stops
// after parsing and reports the distribution of the parsed records.
func (p *Pipeline) Run(ctx context.Context, opts PipelineOptions) (*PipelineReport, error) {
	log := clog.Component(p.Logger, "pipeline")
	parser := p.Parser
	if parser == nil {
		parser = NewParser()
	}
	out := &PipelineReport{}

	log.Info("parsing", "source", opts.Source)
	parsed, err := parser.Parse(ctx, opts.Source)
	out.Parse = parsed
	if err != nil {
		return out, err
	}
	if len(parsed.Records) == 0 {
		return out, fmt.Errorf("%w from %d files", ErrNoRecords, parsed.Files)
	}
	if err := WriteCheckpoint(filepath.Join(opts.OutputDir, ParsedFile), parsed.Records); err != nil {
		return out, err
	}

	if opts.Load.DryRun {
		log.Info("dry run, skipping embedding")
		loadOpts := opts.Load
		loadOpts.AllowUnembedded = true
		out.Load, err = Load(ctx, p.Store, parsed.Records, loadOpts)
		return out, err
	}
	if p.Embedder == nil {
		return out, errors.New("no embedding provider configured")
	}

	embedded, err := Embed(ctx, p.Embedder, parsed.Records, opts.Embed)
	out.Embed = embedded
	if len(embedded.Records) > 0 {
		if werr := WriteCheckpoint(filepath.Join(opts.OutputDir, EmbeddedFile), embedded.Records); werr != nil {
			return out, errors.Join(err, werr)
		}
	}
	if err != nil {
		return out, err
	}
	if len(embedded.Records) == 0 {
		return out, fmt.Errorf("%w: no record received a valid embedding", ErrNoRecords)
	}

	out.Load, err = Load(ctx, p.Store, embedded.Records, opts.Load)
	return out, err
}
