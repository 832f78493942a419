package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/schemapatch/schemapatch/internal/fingerprint"
	"github.com/schemapatch/schemapatch/internal/primitive"
)

var statusFlags struct {
	plan string
	env  string
	url  string
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusFlags.plan, "plan", "", "Plan file (.json, .yaml or .toml)")
	statusCmd.Flags().StringVar(&statusFlags.env, "env", "", "Named environment from schemapatch.toml")
	statusCmd.Flags().StringVar(&statusFlags.url, "url", "", "Connection string (overrides --env)")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which primitives of a plan are already applied",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	url, cfg := resolveConnection(statusFlags.url, statusFlags.env)
	plan := loadPlan(resolvePlanPath(statusFlags.plan, cfg))

	db, drv, err := openDatabase(ctx, url)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = db.Close() }()

	prims, err := primitive.FromPlan(plan)
	if err != nil {
		log.Fatalf("Failed to build plan primitives: %v", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("Plan %s on %s\n", plan.Name, drv.Name())

	pending := 0
	for _, p := range prims {
		res, err := p.Probe(ctx, db, drv)
		switch {
		case err != nil:
			fmt.Printf("  [%s] %s: %v\n", red("error"), p.ID(), err)
			pending++
		case res.Applied:
			line := fmt.Sprintf("  [%s] %s: %s", green("applied"), p.ID(), p.Description())
			if res.Detail != "" {
				line += fmt.Sprintf(" (%s)", res.Detail)
			}
			fmt.Println(line)
		default:
			line := fmt.Sprintf("  [%s] %s: %s", yellow("pending"), p.ID(), p.Description())
			if res.Detail != "" {
				line += fmt.Sprintf(" (%s)", res.Detail)
			}
			fmt.Println(line)
			pending++
		}
	}

	schema, err := drv.Schema(ctx, db)
	if err != nil {
		log.Fatalf("Failed to read schema: %v", err)
	}
	fp, err := fingerprint.Compute(schema)
	if err != nil {
		log.Fatalf("Failed to fingerprint schema: %v", err)
	}
	fmt.Printf("Schema fingerprint: %s\n", fp)

	if pending > 0 {
		os.Exit(1)
	}
}
