package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/ingest"
	"github.com/xrsl/solvx/pkg/signal"
	"github.com/xrsl/solvx/pkg/style"
)

var (
	embedInput     string
	embedOutput    string
	embedBatchSize int
	embedNoCache   bool
)

var embedCmd = &cobra.Command{
	Use:     "embed",
	GroupID: style.GroupIngest,
	Short:   "Generate embeddings for parsed workflows",
	Long: `Attach an embedding to every record in a parse checkpoint.

Requests are sent in batches. Rate limits are waited out and retried; an
interrupt stops after the current batch and still writes the records
embedded so far. Embeddings are cached on disk by model and text.

Requires OPENAI_API_KEY.

Examples:
  solvx embed --input parsed.json --output embedded.json
  solvx embed --input parsed.json --output embedded.json --batch-size 50 --no-cache`,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().StringVarP(&embedInput, "input", "i", ingest.ParsedFile, "Parse checkpoint to read")
	embedCmd.Flags().StringVarP(&embedOutput, "output", "o", ingest.EmbeddedFile, "Embed checkpoint to write")
	embedCmd.Flags().IntVar(&embedBatchSize, "batch-size", 0, "Records per request (default from config)")
	embedCmd.Flags().BoolVar(&embedNoCache, "no-cache", false, "Ignore the embedding cache")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.WithInterrupt(cmd.Context())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	records, err := ingest.ReadCheckpoint(embedInput)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	info("Embedding %d workflows with %s...", len(records), embedder.Model())
	report, err := ingest.Embed(ctx, embedder, records, embedOptions(cfg, embedBatchSize, embedNoCache))
	printEmbedReport(report)

	if len(report.Records) > 0 {
		if werr := ingest.WriteCheckpoint(embedOutput, report.Records); werr != nil {
			return errors.Join(err, werr)
		}
		info("%s Wrote %d workflows to %s", style.Check(err == nil), len(report.Records), style.C(style.Cyan, embedOutput))
	}
	if err != nil {
		return err
	}
	if len(report.Records) == 0 {
		return fmt.Errorf("%w: no record received a valid embedding", ingest.ErrNoRecords)
	}
	return nil
}

func printEmbedReport(r *ingest.EmbedReport) {
	if r == nil {
		return
	}
	info("%s Embedded %d workflows (%d cached, %d batches)", style.Check(true), len(r.Records), r.Cached, r.Batches)
	for _, inv := range r.Invalid {
		info("  %s %s %s", style.Warn(), inv.Key, style.Muted("("+inv.Reason+")"))
	}
}
