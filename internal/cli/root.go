// Package cli implements the lottery command line tool.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree with fresh flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lottery",
		Short:         "Estimate lottery odds per ticket count by Monte Carlo simulation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSimulateCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
