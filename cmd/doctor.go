package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/ai"
	"github.com/xrsl/solvx/pkg/cache"
	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/style"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: style.GroupSetup,
	Short:   "Check system setup",
	Long:    `Verify credentials, the classifier prompt and the corpus connection.`,
	Args:    cobra.NoArgs,
	RunE:    runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("%s Checking solvx setup\n\n", style.Step())

	allGood := true

	// Check 1: embedding credential
	if _, err := config.Env("OPENAI_API_KEY"); err != nil {
		fmt.Printf("%s OPENAI_API_KEY not set (required for embed, match and serve)\n", style.Check(false))
		allGood = false
	} else {
		fmt.Printf("%s OPENAI_API_KEY set\n", style.Check(true))
	}

	// Check 2: classification agent
	switch env := ai.CredentialEnv(cfg.Agent); {
	case !ai.IsAgentSupported(cfg.Agent):
		fmt.Printf("%s unknown agent %s\n", style.Check(false), cfg.Agent)
		allGood = false
	case ai.IsAgentCLI(cfg.Agent):
		fmt.Printf("%s %s (CLI agent)\n", style.Check(true), cfg.Agent)
	case os.Getenv(env) == "":
		fmt.Printf("%s %s not set (required for %s)\n", style.Warn(), env, cfg.Agent)
		fmt.Printf("  Classification will fall back to searching all domains\n")
	default:
		fmt.Printf("%s %s set for %s\n", style.Check(true), env, cfg.Agent)
	}

	// Check 3: classifier prompt
	if _, err := os.Stat(cfg.Classify.PromptPath); err != nil {
		fmt.Printf("%s %s\n", style.C(style.Yellow, "○"),
			style.Muted("using built-in classifier prompt (run 'solvx init' to customize)"))
	} else {
		fmt.Printf("%s classifier prompt %s\n", style.Check(true), cfg.Classify.PromptPath)
	}

	// Check 4: embedding cache
	fmt.Printf("%s embedding cache %s\n", style.Check(true), style.Muted(cache.NewDir(cfg.Ingest.CacheDir).Root()))

	// Check 5: corpus
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Printf("%s %s corpus unreachable: %v\n", style.Check(false), cfg.Corpus.Driver, err)
		allGood = false
	} else {
		defer store.Close()
		total, err := store.Count(ctx)
		if err != nil {
			fmt.Printf("%s %s corpus: %v\n", style.Check(false), cfg.Corpus.Driver, err)
			allGood = false
		} else {
			fmt.Printf("%s %s corpus reachable (%s)\n", style.Check(true), cfg.Corpus.Driver,
				pluralize(total, "workflow", "workflows"))
		}
	}

	fmt.Println()
	if !allGood {
		return fmt.Errorf("setup issues detected")
	}
	fmt.Printf("%s Setup OK\n", style.Check(true))
	return nil
}
