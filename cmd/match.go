package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/enrich"
	"github.com/xrsl/solvx/pkg/style"
	"github.com/xrsl/solvx/pkg/workflow"
)

var (
	matchDomains  []string
	matchProfile  string
	matchClassify bool
	matchJSON     bool
)

var matchCmd = &cobra.Command{
	Use:     "match <problem>",
	GroupID: style.GroupSearch,
	Short:   "Find workflows for a problem",
	Long: `Find the workflows most similar to a problem statement.

Results are filtered by --domain when given. With --classify the problem is
classified first and the search is restricted to the classified domains.
A failed search prints no matches instead of an error.

Profiles (see 'solvx config list'):
  conversation  chat replies (default)
  document      document generation
  search        direct search
  verify        corpus checks

Examples:
  solvx match "how do I compete with larger competitors"
  solvx match "pricing feels too low" --domain sales --domain finance
  solvx match "team morale is down" --classify --profile document --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().StringSliceVarP(&matchDomains, "domain", "d", nil, "Restrict to domain (repeatable)")
	matchCmd.Flags().StringVarP(&matchProfile, "profile", "p", config.ProfileConversation, "Threshold profile")
	matchCmd.Flags().BoolVarP(&matchClassify, "classify", "c", false, "Classify first and search the classified domains")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "Print results as JSON")
	matchCmd.MarkFlagsMutuallyExclusive("domain", "classify")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	problem := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := profile(cfg, matchProfile)
	if err != nil {
		return err
	}
	domains, err := workflow.ParseDomains(matchDomains)
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	matcher := newMatcher(cfg, embedder, store)

	if matchClassify {
		classifier, client, err := newClassifier(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		res := enrich.New(classifier, matcher).Enrich(ctx, problem, p)
		if matchJSON {
			return printJSON(res)
		}
		if res.Classified {
			printClassification(res.Classification)
		} else {
			info("%s classification unavailable, searching all domains", style.Warn())
		}
		printMatches(res.Matches, p.Threshold)
		return nil
	}

	matches := matcher.Match(ctx, problem, domains, p)
	if matchJSON {
		return printJSON(matches)
	}
	printMatches(matches, p.Threshold)
	return nil
}

func printMatches(matches []workflow.Match, threshold float64) {
	if len(matches) == 0 {
		fmt.Printf("No workflows above %.0f%% similarity.\n", threshold*100)
		return
	}
	fmt.Printf("\n%s\n\n", style.B(pluralize(len(matches), "matching workflow", "matching workflows")))
	for i, m := range matches {
		fmt.Printf("%d. %s\n", i+1, style.C(style.Cyan, m.Name))
		fmt.Printf("   %s / %s  %s\n", m.Domain, m.SubDomain, style.C(style.Green, fmt.Sprintf("%.1f%%", m.Similarity*100)))
		if m.TaskSummary != "" {
			fmt.Printf("   %s\n", style.Muted(truncateLine(m.TaskSummary, 160)))
		}
		fmt.Println()
	}
}

func truncateLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
