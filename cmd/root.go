package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/config"
	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/style"
)

var (
	quiet      bool
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "solvx",
	Short: "Workflow retrieval for business problems",
	Long: `solvx matches business problems to a curated library of prompt workflows.

Ingest a library of workflow documents into a searchable corpus, classify
problems into a business taxonomy, and retrieve the workflows most similar
to a problem from the command line or over HTTP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, style.C(style.Red, "error:"), err)
		os.Exit(1)
	}
}

func init() {
	// Setup Typer-style help formatting
	style.SetupHelp(rootCmd)

	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .solvx-config.yaml)")
}

// setup applies global flags and the log settings from config.
func setup(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		if err := config.SetPath(configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	clog.SetFormat(cfg.Log.Format)
	clog.SetLevel(cfg.Log.Level)
	switch {
	case verbose:
		clog.SetVerbose(true)
	case quiet:
		clog.SetQuiet(true)
	}
	return nil
}

// info prints progress output unless --quiet is set.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}
