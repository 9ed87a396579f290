package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/ai"
	"github.com/xrsl/solvx/pkg/classify"
	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/style"
)

var initDefaults bool

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: style.GroupSetup,
	Short:   "Initialize solvx in this directory",
	Long: `Initialize solvx configuration and directory structure.

Creates:
  .solvx-config.yaml          Configuration file
  .solvx/prompts/classify.md  Editable classifier prompt

Run this once per project. Use --yes to accept every default.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initDefaults, "yes", "y", false, "Accept defaults without prompting")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, configErr := os.Stat(config.Path())
	_, promptErr := os.Stat(cfg.Classify.PromptPath)
	if configErr == nil && promptErr == nil {
		fmt.Printf("%s Already initialized\n", style.Check(true))
		fmt.Printf("  Config: %s\n", style.Muted(config.Path()))
		fmt.Printf("  Prompt: %s\n\n", style.Muted(cfg.Classify.PromptPath))
		return nil
	}

	in := bufio.NewReader(os.Stdin)
	if !initDefaults {
		fmt.Printf("\n%s\n\n", style.Muted("Press Enter to accept defaults shown in brackets."))
	}

	agent := chooseAgent(in, cfg.Agent)
	if err := config.Set("agent", agent); err != nil {
		return err
	}
	if err := chooseCorpus(in, cfg.Corpus.Driver, cfg.Corpus.DSN); err != nil {
		return err
	}
	if err := writePromptFile(cfg.Classify.PromptPath); err != nil {
		return err
	}

	fmt.Printf("%s Wrote %s\n", style.Check(true), config.Path())
	fmt.Printf("%s Wrote %s\n\n", style.Check(true), cfg.Classify.PromptPath)
	fmt.Printf("Next: %s, then %s\n\n",
		style.C(style.Cyan, "solvx doctor"), style.C(style.Cyan, "solvx pipeline --source <dir>"))
	return nil
}

func ask(question, def string) string {
	return fmt.Sprintf("%s %s %s: ", style.C(style.Green, "?"), question, style.C(style.Cyan, "["+def+"]"))
}

// chooseAgent lists the available agents and returns the one picked, or
// current when the answer is empty or out of range.
func chooseAgent(in *bufio.Reader, current string) string {
	agents := ai.SupportedAgents()
	if initDefaults || len(agents) == 0 {
		return current
	}

	def := max(slices.Index(agents, current), 0)
	fmt.Printf("%s Classification agent\n", style.C(style.Green, "?"))
	for i, a := range agents {
		marker := "   "
		if i == def {
			marker = "  " + style.C(style.Green, "→")
		}
		line := fmt.Sprintf("%s%s %s", marker, style.C(style.Cyan, strconv.Itoa(i+1)+")"), a)
		if env := ai.CredentialEnv(a); env != "" {
			line += " " + style.Muted("(requires "+env+")")
		}
		fmt.Println(line)
	}

	picked := agents[def]
	answer := prompt(in, fmt.Sprintf("\n  Choice %s: ", style.C(style.Cyan, fmt.Sprintf("[%d]", def+1))))
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(agents) {
		picked = agents[n-1]
	}
	fmt.Printf("  Using %s\n\n", style.C(style.Cyan, picked))
	return picked
}

// chooseCorpus stores the corpus driver and, for sqlite, the database file.
// Postgres connection strings stay in the environment.
func chooseCorpus(in *bufio.Reader, driver, dsn string) error {
	for !initDefaults {
		answer := prompt(in, ask("Corpus backend (sqlite/postgres)", driver))
		if answer == "" {
			break
		}
		if answer == "sqlite" || answer == "postgres" {
			driver = answer
			break
		}
		fmt.Println("  Choose sqlite or postgres")
	}
	if err := config.Set("corpus.driver", driver); err != nil {
		return err
	}

	if driver != "sqlite" {
		fmt.Printf("  %s\n\n", style.Muted("Set DATABASE_URL (or SOLVX_CORPUS_DSN) in your environment or .env"))
		return nil
	}
	if !initDefaults {
		if answer := prompt(in, ask("Corpus file", dsn)); answer != "" {
			dsn = answer
		}
	}
	fmt.Println()
	return config.Set("corpus.dsn", dsn)
}

func prompt(r *bufio.Reader, question string) string {
	fmt.Print(question)
	input, _ := r.ReadString('\n')
	return strings.TrimSpace(input)
}

// writePromptFile writes the built-in classifier prompt unless path exists.
func writePromptFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create prompt dir: %w", err)
	}
	return os.WriteFile(path, []byte(classify.DefaultPrompt), 0o644)
}
