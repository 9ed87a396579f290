package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/style"
	"github.com/xrsl/solvx/pkg/workflow"
)

var classifyJSON bool

var classifyCmd = &cobra.Command{
	Use:     "classify <problem>",
	GroupID: style.GroupSearch,
	Short:   "Classify a business problem",
	Long: `Classify a problem statement into symptoms, challenges, business domains
and intent using the configured agent.

Examples:
  solvx classify "Our win rate dropped after a competitor cut prices"
  solvx classify "Churn is rising among small accounts" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Print the classification as JSON")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	classifier, client, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	problem := strings.Join(args, " ")
	info("Classifying with %s...", cfg.Agent)
	c, err := classifier.Classify(cmd.Context(), problem)
	if err != nil {
		return err
	}

	if classifyJSON {
		return printJSON(c)
	}
	printClassification(c)
	return nil
}

func printClassification(c workflow.Classification) {
	secondary := make([]string, len(c.SecondaryDomains))
	for i, d := range c.SecondaryDomains {
		secondary[i] = string(d)
	}

	fmt.Println()
	fmt.Printf("  %-10s %s\n", "domain", style.C(style.Cyan, string(c.PrimaryDomain)))
	if len(secondary) > 0 {
		fmt.Printf("  %-10s %s\n", "also", strings.Join(secondary, ", "))
	}
	fmt.Printf("  %-10s %s\n", "intent", c.Intent)
	fmt.Printf("  %-10s %.2f\n", "confidence", c.Confidence)
	printList("symptoms", c.Symptoms)
	printList("challenges", c.Challenges)
	fmt.Println()
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s\n", style.B(title))
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
