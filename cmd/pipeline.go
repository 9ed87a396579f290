package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/ingest"
	"github.com/xrsl/solvx/pkg/signal"
	"github.com/xrsl/solvx/pkg/style"
)

var (
	pipelineSource       string
	pipelineOutput       string
	pipelineRules        string
	pipelineBatchSize    int
	pipelineDryRun       bool
	pipelineSkipExisting bool
	pipelineClearFirst   bool
	pipelineNoCache      bool
)

var pipelineCmd = &cobra.Command{
	Use:     "pipeline",
	GroupID: style.GroupIngest,
	Short:   "Parse, embed and load in one run",
	Long: `Run the full ingestion pipeline: parse the source tree, embed the
records and load them into the corpus. Checkpoints are written to the output
directory after parsing and embedding.

A dry run makes no embedding requests and writes nothing to the corpus: it
stops after parsing and reports what would be loaded.

Examples:
  solvx pipeline --source ./library --output ./data
  solvx pipeline --source ./library --output ./data --skip-existing
  solvx pipeline --source ./library --output ./data --dry-run`,
	RunE: runPipeline,
}

func init() {
	pipelineCmd.Flags().StringVarP(&pipelineSource, "source", "s", "", "Source directory (required)")
	pipelineCmd.Flags().StringVarP(&pipelineOutput, "output", "o", ".solvx", "Checkpoint directory")
	pipelineCmd.Flags().StringVar(&pipelineRules, "rules", "", "Parsing rules YAML (default: built-in)")
	pipelineCmd.Flags().IntVar(&pipelineBatchSize, "batch-size", 0, "Records per embedding request (default from config)")
	pipelineCmd.Flags().BoolVar(&pipelineDryRun, "dry-run", false, "Parse only: no embedding requests, no corpus writes")
	pipelineCmd.Flags().BoolVar(&pipelineSkipExisting, "skip-existing", false, "Skip workflows already in the corpus")
	pipelineCmd.Flags().BoolVar(&pipelineClearFirst, "clear-first", false, "Delete all workflows before loading")
	pipelineCmd.Flags().BoolVar(&pipelineNoCache, "no-cache", false, "Ignore the embedding cache")
	_ = pipelineCmd.MarkFlagRequired("source")
	pipelineCmd.MarkFlagsMutuallyExclusive("skip-existing", "clear-first")
	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.WithInterrupt(cmd.Context())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rules, err := ingest.LoadRules(pipelineRules)
	if err != nil {
		return err
	}

	p := &ingest.Pipeline{Parser: ingest.NewParser(ingest.WithRules(rules))}

	if !pipelineDryRun {
		if p.Embedder, err = newEmbedder(cfg); err != nil {
			return err
		}
	}

	var store corpus.Store
	if !pipelineDryRun || pipelineSkipExisting {
		if store, err = openStore(ctx, cfg); err != nil {
			return err
		}
		defer store.Close()
		p.Store = store
	}

	opts := ingest.PipelineOptions{
		Source:    pipelineSource,
		OutputDir: pipelineOutput,
		Embed:     embedOptions(cfg, pipelineBatchSize, pipelineNoCache),
		Load: ingest.LoadOptions{
			BatchSize:    cfg.Ingest.LoadBatchSize,
			ClearFirst:   pipelineClearFirst,
			SkipExisting: pipelineSkipExisting,
			DryRun:       pipelineDryRun,
		},
	}

	info("Running pipeline on %s...", pipelineSource)
	report, err := p.Run(ctx, opts)
	if report != nil {
		if report.Parse != nil {
			printParseReport(report.Parse)
		}
		printEmbedReport(report.Embed)
		printLoadReport(report.Load)
	}
	return err
}

func embedOptions(cfg *config.Config, batchSize int, noCache bool) ingest.EmbedOptions {
	return ingest.EmbedOptions{
		BatchSize:     firstPositive(batchSize, cfg.Ingest.EmbedBatchSize),
		RateLimitWait: cfg.Ingest.RateLimitWait,
		BatchPause:    cfg.Ingest.BatchPause,
		Cache:         newEmbeddingCache(cfg, noCache),
	}
}
