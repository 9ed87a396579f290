package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/style"
	"github.com/xrsl/solvx/pkg/workflow"
)

const defaultTestQuery = "how do I compete with larger competitors"

var verifyQuery string

var verifyCmd = &cobra.Command{
	Use:     "verify",
	GroupID: style.GroupSearch,
	Short:   "Verify the corpus and run a test search",
	Long: `Verify that workflows are loaded and searchable.

Prints corpus statistics and a sample workflow, checks the stored embedding
size, then embeds a test query and searches with the verify profile.
The test search is skipped when OPENAI_API_KEY is not set.

Examples:
  solvx verify
  solvx verify --test-query "how do I differentiate from competitors"`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyQuery, "test-query", defaultTestQuery, "Query for the test search")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("%s Workflow statistics\n", style.Step())
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
	fmt.Printf("  %-12s %d\n", "workflows", total)
	fmt.Printf("  %-12s %d\n", "embedded", embedded)
	if total == 0 {
		return errors.New("corpus is empty; run 'solvx pipeline' first")
	}
	printDistribution("By domain", byDomain)

	fmt.Printf("\n%s Sample workflow\n", style.Step())
	sample, err := store.Sample(ctx)
	if err != nil {
		return err
	}
	if sample != nil {
		r := sample.Record
		fmt.Printf("  %-12s %s\n", "name", r.Name)
		fmt.Printf("  %-12s %s / %s\n", "domain", r.Domain, r.SubDomain)
		fmt.Printf("  %-12s %s\n", "source", r.SourceBook)
		fmt.Printf("  %-12s %d\n", "questions", len(r.KeyQuestions))
		fmt.Printf("  %-12s %d\n", "patterns", len(r.ProblemPatterns))
		fmt.Printf("  %-12s %s\n", "synergy", joinDomains(r.SynergyTriggers))

		fmt.Printf("\n%s Embedding\n", style.Step())
		switch sample.Dimensions {
		case workflow.EmbeddingDimensions:
			fmt.Printf("%s embeddings present (%d dimensions)\n", style.Check(true), sample.Dimensions)
		case 0:
			fmt.Printf("%s sample has no embedding\n", style.Check(false))
		default:
			fmt.Printf("%s unexpected size %d (want %d)\n", style.Check(false), sample.Dimensions, workflow.EmbeddingDimensions)
		}
	}

	embedder, err := newEmbedder(cfg)
	if errors.Is(err, config.ErrMissingCredential) {
		fmt.Printf("\n%s skipping test search (%v)\n", style.Warn(), err)
		return nil
	}
	if err != nil {
		return err
	}

	p, err := profile(cfg, config.ProfileVerify)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s Test search %s\n", style.Step(), style.Muted(fmt.Sprintf("%q", verifyQuery)))

	// Search, not Match: a failure here is what verify is looking for.
	matches, err := newMatcher(cfg, embedder, store).Search(ctx, verifyQuery, nil, p)
	if err != nil {
		return fmt.Errorf("test search failed: %w", err)
	}
	printMatches(matches, p.Threshold)
	fmt.Printf("%s Verification complete\n", style.Check(true))
	return nil
}

func joinDomains(ds []workflow.Domain) string {
	if len(ds) == 0 {
		return "none"
	}
	s := make([]string, len(ds))
	for i, d := range ds {
		s[i] = string(d)
	}
	return strings.Join(s, ", ")
}
