package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "schemapatch",
	Short: "Schemapatch applies idempotent, forward-only schema patches.",
	Long: `Schemapatch applies idempotent, forward-only schema patches.

A patch plan declares a set of change primitives (add a column, add a
foreign key, backfill a column, rename an index). Every primitive probes the
live schema before mutating it, so re-running a plan is always safe: already
applied changes are skipped, missing ones are applied.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
