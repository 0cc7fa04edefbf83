package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for deadlink.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadlink",
		Short: "Dead link checker for websites",
		Long: `deadlink crawls a website from a seed URL, follows every link inside the
target domain and reports the links that are dead, grouped by page.

External links are recorded but never followed. Use --check-external to
load each external link once and classify it as well.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
