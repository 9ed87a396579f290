package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/ingest"
	"github.com/xrsl/solvx/pkg/signal"
	"github.com/xrsl/solvx/pkg/style"
	"github.com/xrsl/solvx/pkg/workflow"
)

var (
	parseSource string
	parseOutput string
	parseRules  string
)

var parseCmd = &cobra.Command{
	Use:     "parse",
	GroupID: style.GroupIngest,
	Short:   "Parse workflow documents into records",
	Long: `Parse a tree of workflow documents (markdown, text or HTML) into records.

Top-level folders named after a domain (strategy, marketing, sales, operations,
innovation, hr, finance) set the domain of the files below them. Files outside
a domain folder are assigned by filename, or reported as unknown.

Examples:
  solvx parse --source ./library --output parsed.json
  solvx parse --source ./library --output parsed.json --rules rules.yaml`,
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&parseSource, "source", "s", "", "Source directory (required)")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", ingest.ParsedFile, "Output checkpoint file")
	parseCmd.Flags().StringVar(&parseRules, "rules", "", "Parsing rules YAML (default: built-in)")
	_ = parseCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.WithInterrupt(cmd.Context())
	defer cancel()

	rules, err := ingest.LoadRules(parseRules)
	if err != nil {
		return err
	}

	info("Parsing %s...", parseSource)
	report, err := ingest.NewParser(ingest.WithRules(rules)).Parse(ctx, parseSource)
	if err != nil {
		return err
	}
	printParseReport(report)

	if len(report.Records) == 0 {
		return fmt.Errorf("%w from %d files", ingest.ErrNoRecords, report.Files)
	}
	if err := ingest.WriteCheckpoint(parseOutput, report.Records); err != nil {
		return err
	}
	info("%s Wrote %d workflows to %s", style.Check(true), len(report.Records), style.C(style.Cyan, parseOutput))
	return nil
}

func printParseReport(r *ingest.ParseReport) {
	info("%s Parsed %d workflows from %d files", style.Check(true), len(r.Records), r.Files)
	if r.Discarded > 0 {
		info("  %s", style.Muted(fmt.Sprintf("%d units discarded (task summary too short)", r.Discarded)))
	}
	for _, fe := range r.Errors {
		info("  %s %s", style.Warn(), fe.Error())
	}
	for _, path := range r.Unknown {
		info("  %s %s %s", style.Warn(), path, style.Muted("(domain unknown)"))
	}
	if !quiet {
		printDistribution("By domain", workflow.Distribution(r.Records))
	}
}
