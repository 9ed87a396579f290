package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/ingest"
	"github.com/xrsl/solvx/pkg/signal"
	"github.com/xrsl/solvx/pkg/style"
)

var (
	loadInput           string
	loadBatchSize       int
	loadDryRun          bool
	loadSkipExisting    bool
	loadClearFirst      bool
	loadAllowUnembedded bool
)

var loadCmd = &cobra.Command{
	Use:     "load",
	GroupID: style.GroupIngest,
	Short:   "Load embedded workflows into the corpus",
	Long: `Insert the records of an embed checkpoint into the workflow corpus.

Records without a valid embedding are excluded unless --allow-unembedded is
set. A failed batch is reported and the remaining batches still run.

Examples:
  solvx load --input embedded.json
  solvx load --input embedded.json --dry-run
  solvx load --input embedded.json --skip-existing
  solvx load --input embedded.json --clear-first`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVarP(&loadInput, "input", "i", ingest.EmbeddedFile, "Embed checkpoint to read")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0, "Records per insert (default from config)")
	loadCmd.Flags().BoolVar(&loadDryRun, "dry-run", false, "Report what would be loaded without writing")
	loadCmd.Flags().BoolVar(&loadSkipExisting, "skip-existing", false, "Skip workflows already in the corpus")
	loadCmd.Flags().BoolVar(&loadClearFirst, "clear-first", false, "Delete all workflows before loading")
	loadCmd.Flags().BoolVar(&loadAllowUnembedded, "allow-unembedded", false, "Store records without an embedding")
	loadCmd.MarkFlagsMutuallyExclusive("skip-existing", "clear-first")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.WithInterrupt(cmd.Context())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	records, err := ingest.ReadCheckpoint(loadInput)
	if err != nil {
		return err
	}

	var store corpus.Store
	if !loadDryRun || loadSkipExisting {
		if store, err = openStore(ctx, cfg); err != nil {
			return err
		}
		defer store.Close()
	}

	opts := ingest.LoadOptions{
		BatchSize:       firstPositive(loadBatchSize, cfg.Ingest.LoadBatchSize),
		ClearFirst:      loadClearFirst,
		SkipExisting:    loadSkipExisting,
		DryRun:          loadDryRun,
		AllowUnembedded: loadAllowUnembedded,
	}
	info("Loading %d workflows...", len(records))
	report, err := ingest.Load(ctx, store, records, opts)
	printLoadReport(report)
	return err
}

func printLoadReport(r *ingest.LoadReport) {
	if r == nil {
		return
	}
	for _, ex := range r.Excluded {
		info("  %s %s %s", style.Warn(), ex.Key, style.Muted("("+ex.Reason+")"))
	}
	for _, k := range r.Duplicates {
		info("  %s %s %s", style.Warn(), k, style.Muted("(duplicate in input)"))
	}
	if r.Skipped > 0 {
		info("  %s", style.Muted(pluralize(r.Skipped, "workflow", "workflows")+" already stored, skipped"))
	}

	if r.DryRun {
		info("%s Dry run: nothing written", style.Step())
		if !quiet {
			printDistribution("Would load", r.Distribution)
		}
		return
	}

	info("%s Inserted %d workflows in %d batches", style.Check(r.Failed == 0), r.Inserted, r.Batches)
	if r.Failed > 0 {
		info("  %s", style.C(style.Red, pluralize(r.Failed, "record", "records")+" failed"))
	}
	if !quiet {
		printDistribution("Corpus", r.ByDomain)
	}
}
