package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/executor"
	"github.com/schemapatch/schemapatch/internal/locks"
	"github.com/schemapatch/schemapatch/internal/patch"
	"github.com/schemapatch/schemapatch/internal/primitive"
	"github.com/schemapatch/schemapatch/internal/sqlvalidation"
)

var applyFlags struct {
	plan            string
	env             string
	url             string
	dryRun          bool
	granularity     string
	continueOnError bool
	stepTimeout     time.Duration
	lockKey         string
	format          string
	showLocks       bool
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&applyFlags.plan, "plan", "", "Plan file (.json, .yaml or .toml)")
	applyCmd.Flags().StringVar(&applyFlags.env, "env", "", "Named environment from schemapatch.toml")
	applyCmd.Flags().StringVar(&applyFlags.url, "url", "", "Connection string (overrides --env)")
	applyCmd.Flags().BoolVar(&applyFlags.dryRun, "dry-run", false, "Probe and preview without mutating anything")
	applyCmd.Flags().StringVar(&applyFlags.granularity, "granularity", string(executor.GranularityPerPrimitive),
		"Transaction granularity: per-plan or per-primitive")
	applyCmd.Flags().BoolVar(&applyFlags.continueOnError, "continue-on-error", false,
		"Keep applying primitives that do not depend on a failed one")
	applyCmd.Flags().DurationVar(&applyFlags.stepTimeout, "step-timeout", 0, "Timeout per probe and per apply (0 = none)")
	applyCmd.Flags().StringVar(&applyFlags.lockKey, "lock-key", "", "Advisory lock key (default: plan name)")
	applyCmd.Flags().StringVar(&applyFlags.format, "format", "text", "Report format: text or machine")
	applyCmd.Flags().BoolVar(&applyFlags.showLocks, "show-locks", false, "Print the lock impact of each planned statement")
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a patch plan to the database",
	Long: `Apply a patch plan to the database.

Each primitive is probed first and skipped when its effect is already
present, so apply is safe to re-run after a partial failure.`,
	Run: runApply,
}

func runApply(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	url, cfg := resolveConnection(applyFlags.url, applyFlags.env)
	plan := loadPlan(resolvePlanPath(applyFlags.plan, cfg))

	db, drv, err := openDatabase(ctx, url)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = db.Close() }()

	if issues := sqlvalidation.CheckPlan(plan, drv.Dialect()); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "invalid SQL fragment: %s\n", issue)
		}
		os.Exit(1)
	}

	granularity, err := parseGranularity(applyFlags.granularity)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if applyFlags.showLocks {
		printLockImpact(ctx, db, drv, plan)
	}

	opts := executor.Options{
		Granularity:        granularity,
		StopOnFirstFailure: !applyFlags.continueOnError,
		DryRun:             applyFlags.dryRun,
		StepTimeout:        applyFlags.stepTimeout,
		LockKey:            applyFlags.lockKey,
	}

	report, runErr := executor.New(db, drv).Execute(ctx, plan, opts)
	if report == nil {
		log.Fatalf("Failed to run plan: %v", runErr)
	}

	renderReport(os.Stdout, report, applyFlags.format)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", runErr)
	}
	os.Exit(report.ExitCode())
}

// renderReport writes the execution report. A failed run always emits both
// the human-readable section and the machine key-value block, so scripts
// capturing stdout get parseable state even when the operator asked for text.
func renderReport(w io.Writer, report *executor.Report, format string) {
	if report.ExitCode() != 0 {
		report.RenderText(w)
		fmt.Fprintln(w)
		report.RenderMachine(w)
		return
	}

	switch format {
	case "machine":
		report.RenderMachine(w)
	default:
		report.RenderText(w)
	}
}

func parseGranularity(s string) (executor.Granularity, error) {
	switch executor.Granularity(s) {
	case executor.GranularityPerPlan:
		return executor.GranularityPerPlan, nil
	case executor.GranularityPerPrimitive, "":
		return executor.GranularityPerPrimitive, nil
	default:
		return "", fmt.Errorf("unknown granularity %q (want per-plan or per-primitive)", s)
	}
}

// printLockImpact previews the lock each planned statement takes. Best
// effort: primitives whose targets do not exist yet are previewed with a
// bare table definition.
func printLockImpact(ctx context.Context, db database.DBTX, drv database.Driver, plan *patch.Plan) {
	prims, err := primitive.FromPlan(plan)
	if err != nil {
		log.Fatalf("Failed to build plan primitives: %v", err)
	}

	for _, p := range prims {
		statements, err := p.PlannedStatements(ctx, db, drv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s: lock preview unavailable: %v\n", p.ID(), err)
			continue
		}
		for _, st := range statements {
			impact := locks.AnalyzeLockImpact(st)
			fmt.Printf("  %s: %s [%s, impact %s]\n", p.ID(), st.Description, impact.LockMode, impact.Impact)
			if impact.IsHighImpact() {
				fmt.Printf("      %s\n", impact.Explanation)
			}
		}
	}
}
