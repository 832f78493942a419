package executor

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/schemapatch/schemapatch/internal/patch"
)

// Status is the terminal state of one primitive within a run.
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"

	// StatusRolledBack marks a primitive that applied successfully but was
	// undone because a later primitive failed inside a per-plan transaction.
	StatusRolledBack Status = "rolled_back"

	// StatusPlanned marks a primitive a dry run would apply.
	StatusPlanned Status = "planned"
)

// StepReport records the outcome of one primitive.
type StepReport struct {
	ID          string     `json:"id"`
	Kind        patch.Kind `json:"kind"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Detail      string     `json:"detail,omitempty"`
	// PreApplied is set when the probe found the effect already present,
	// distinguishing an idempotent skip from a halt or blocked dependency.
	PreApplied bool          `json:"pre_applied,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        string        `json:"error,omitempty"`
}

// Report is the outcome of a whole run.
type Report struct {
	Plan        string       `json:"plan"`
	Driver      string       `json:"driver"`
	Granularity Granularity  `json:"granularity"`
	DryRun      bool         `json:"dry_run"`
	Started     time.Time    `json:"started"`
	Finished    time.Time    `json:"finished"`
	Steps       []StepReport `json:"steps"`
	Warnings    []string     `json:"warnings,omitempty"`

	// FingerprintBefore and FingerprintAfter are schema fingerprints taken
	// around a dry run; equal values prove the run mutated nothing.
	FingerprintBefore string `json:"fingerprint_before,omitempty"`
	FingerprintAfter  string `json:"fingerprint_after,omitempty"`

	Verification *VerificationResult `json:"verification,omitempty"`
}

func (r *Report) add(step StepReport) {
	r.Steps = append(r.Steps, step)
}

// Counts returns the number of steps per status.
func (r *Report) Counts() (applied, skipped, failed int) {
	for _, s := range r.Steps {
		switch s.Status {
		case StatusApplied:
			applied++
		case StatusSkipped:
			skipped++
		case StatusFailed, StatusRolledBack:
			failed++
		}
	}
	return
}

// Succeeded reports whether every primitive ended applied or skipped and
// verification, if performed, passed.
func (r *Report) Succeeded() bool {
	_, _, failed := r.Counts()
	if failed > 0 {
		return false
	}
	if r.Verification != nil && !r.Verification.OK() {
		return false
	}
	return true
}

// ExitCode maps the run outcome onto the process exit status.
func (r *Report) ExitCode() int {
	if r.Succeeded() {
		return 0
	}
	return 1
}

// RenderText writes the human-readable summary.
func (r *Report) RenderText(w io.Writer) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Plan %s on %s, %s transactions%s\n", r.Plan, r.Driver, r.Granularity, mode)

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", yellow("warning:"), warning)
	}

	for _, s := range r.Steps {
		var badge string
		switch s.Status {
		case StatusApplied:
			badge = green("applied")
		case StatusSkipped:
			badge = yellow("skipped")
		case StatusPlanned:
			badge = yellow("would apply")
		case StatusRolledBack:
			badge = red("rolled back")
		default:
			badge = red("failed")
		}
		fmt.Fprintf(w, "  [%s] %s: %s", badge, s.ID, s.Description)
		if s.Detail != "" {
			fmt.Fprintf(w, " (%s)", s.Detail)
		}
		fmt.Fprintln(w)
		if s.Err != "" {
			fmt.Fprintf(w, "      %s\n", red(s.Err))
		}
	}

	if r.Verification != nil {
		for _, m := range r.Verification.Mismatches {
			fmt.Fprintf(w, "  %s %s: %s\n", red("verify:"), m.PrimitiveID, m.Detail)
		}
	}

	applied, skipped, failed := r.Counts()
	summary := fmt.Sprintf("%d applied, %d skipped, %d failed in %s",
		applied, skipped, failed, r.Finished.Sub(r.Started).Round(time.Millisecond))
	if r.Succeeded() {
		fmt.Fprintf(w, "%s %s\n", green("✓"), summary)
	} else {
		fmt.Fprintf(w, "%s %s\n", red("✗"), summary)
	}
}

// RenderMachine writes the key=value report consumed by scripts. One line
// per key; step statuses are flattened as step.<id>=<status>.
func (r *Report) RenderMachine(w io.Writer) {
	applied, skipped, failed := r.Counts()

	fmt.Fprintf(w, "plan=%s\n", r.Plan)
	fmt.Fprintf(w, "driver=%s\n", r.Driver)
	fmt.Fprintf(w, "granularity=%s\n", r.Granularity)
	fmt.Fprintf(w, "dry_run=%t\n", r.DryRun)
	fmt.Fprintf(w, "applied=%d\n", applied)
	fmt.Fprintf(w, "skipped=%d\n", skipped)
	fmt.Fprintf(w, "failed=%d\n", failed)
	fmt.Fprintf(w, "duration_ms=%d\n", r.Finished.Sub(r.Started).Milliseconds())
	if r.FingerprintBefore != "" {
		fmt.Fprintf(w, "fingerprint_before=%s\n", r.FingerprintBefore)
		fmt.Fprintf(w, "fingerprint_after=%s\n", r.FingerprintAfter)
	}
	for _, s := range r.Steps {
		fmt.Fprintf(w, "step.%s=%s\n", s.ID, s.Status)
		if s.Err != "" {
			fmt.Fprintf(w, "step.%s.error=%s\n", s.ID, strings.ReplaceAll(s.Err, "\n", " "))
		}
	}
	if r.Verification != nil {
		fmt.Fprintf(w, "verified=%t\n", r.Verification.OK())
	}
	fmt.Fprintf(w, "exit_code=%d\n", r.ExitCode())
}
