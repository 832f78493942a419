package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
	"github.com/schemapatch/schemapatch/internal/sqlvalidation"
)

var validateFlags struct {
	dialect string
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateFlags.dialect, "dialect", "postgres",
		"Dialect to validate SQL fragments against: postgres or sqlite")
}

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Validate a plan file without touching a database",
	Long: `Validate a plan file without touching a database.

Checks structure, kind-specific parameters, dependency references and the
SQL fragments embedded in backfill primitives.`,
	Args: cobra.ExactArgs(1),
	Run:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) {
	dialect := database.Dialect(validateFlags.dialect)
	if dialect != database.DialectPostgres && dialect != database.DialectSQLite {
		log.Fatalf("Unknown dialect %q (want postgres or sqlite)", validateFlags.dialect)
	}

	plan, err := patch.Load(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}

	if issues := sqlvalidation.CheckPlan(plan, dialect); len(issues) > 0 {
		fmt.Fprintf(os.Stderr, "✗ Plan %s has invalid SQL fragments:\n", plan.Name)
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  %s\n", issue)
		}
		os.Exit(1)
	}

	fmt.Printf("✓ Plan %s is valid: %d primitive(s)\n", plan.Name, len(plan.Primitives))
}
