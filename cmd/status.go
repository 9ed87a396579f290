package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/style"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: style.GroupSearch,
	Short:   "Show corpus counts",
	Long: `Show how many workflows the corpus holds, per domain, and how many of
them have an embedding.

Examples:
  solvx status
  SOLVX_CORPUS_DRIVER=postgres solvx status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	embedded, err := store.CountEmbedded(ctx)
	if err != nil {
		return err
	}
	byDomain, err := store.CountByDomain(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s corpus\n", style.Step(), cfg.Corpus.Driver)
	fmt.Printf("  %-12s %d\n", "workflows", total)
	fmt.Printf("  %-12s %d\n", "embedded", embedded)
	if total > 0 {
		printDistribution("By domain", byDomain)
	}

	switch {
	case total == 0:
		fmt.Printf("\n%s corpus is empty; run 'solvx pipeline'\n", style.Warn())
	case embedded < total:
		fmt.Printf("\n%s %d workflows have no embedding and will not match\n",
			style.Warn(), total-embedded)
	}
	return nil
}
