package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/style"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: style.GroupSetup,
	Short:   "Manage solvx configuration",
	Long: `Read and write solvx configuration.

Values come from .solvx-config.yaml, overridden by SOLVX_* environment
variables (e.g. SOLVX_CORPUS_DRIVER). Credentials are read from the
environment only.

  solvx config list
  solvx config get <key>
  solvx config set <key> <value>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configListCmd.RunE(cmd, args)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Long: `Set a configuration value.

Examples:
  solvx config set agent gemini-2.5-flash
  solvx config set corpus.driver postgres
  solvx config set match.profiles.conversation.threshold 0.6
  solvx config set ingest.rate_limit_wait 30s`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.Keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.Set(key, value); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.Get(args[0])
		if err != nil {
			return err
		}
		if value == "" {
			fmt.Println("(not set)")
		} else {
			fmt.Println(value)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.All()
		if err != nil {
			return err
		}

		fmt.Printf("\n%s\n%s\n", style.B(style.C(style.Cyan, "solvx config")), style.Muted(config.Path()))

		section := ""
		for _, key := range config.Keys() {
			head, rest, nested := strings.Cut(key, ".")
			if !nested {
				head, rest = "general", key
			}
			if head != section {
				section = head
				fmt.Printf("\n%s\n", style.C(style.Cyan, section))
			}
			printConfigRow(rest, values[key])
		}
		fmt.Println()
		return nil
	},
}

func printConfigRow(key, value string) {
	shown := style.C(style.Green, value)
	if value == "" {
		shown = style.Muted("(not set)")
	}
	fmt.Printf("  %-34s %s\n", key, shown)
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
