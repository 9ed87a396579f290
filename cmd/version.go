package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/style"
)

var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: style.GroupSetup,
	Short:   "Print solvx version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("solvx %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
