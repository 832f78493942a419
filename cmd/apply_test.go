package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/schemapatch/schemapatch/internal/executor"
	"github.com/schemapatch/schemapatch/internal/patch"
)

func sampleReport(failed bool) *executor.Report {
	started := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	r := &executor.Report{
		Plan:        "add-industry",
		Driver:      "sqlite",
		Granularity: executor.GranularityPerPrimitive,
		Started:     started,
		Finished:    started.Add(42 * time.Millisecond),
		Steps: []executor.StepReport{
			{ID: "add-industry-id", Kind: patch.KindAddColumn, Description: "Add column bookings.industry_id", Status: executor.StatusApplied},
		},
	}
	if failed {
		r.Steps = append(r.Steps, executor.StepReport{
			ID:          "backfill-industry-id",
			Kind:        patch.KindBackfillColumn,
			Description: "Backfill bookings.industry_id",
			Status:      executor.StatusFailed,
			Err:         "no such table: industries",
		})
	}
	return r
}

func TestRenderReportFailureEmitsBothFormats(t *testing.T) {
	for _, format := range []string{"text", "machine"} {
		var b strings.Builder
		renderReport(&b, sampleReport(true), format)
		out := b.String()

		if !strings.Contains(out, "[") || !strings.Contains(out, "backfill-industry-id: Backfill bookings.industry_id") {
			t.Errorf("format=%s: human section missing from failure output:\n%s", format, out)
		}
		for _, line := range []string{
			"step.backfill-industry-id=failed",
			"step.backfill-industry-id.error=no such table: industries",
			"exit_code=1",
		} {
			if !strings.Contains(out, line) {
				t.Errorf("format=%s: missing machine line %q in:\n%s", format, line, out)
			}
		}
	}
}

func TestRenderReportSuccessHonorsFormat(t *testing.T) {
	var text strings.Builder
	renderReport(&text, sampleReport(false), "text")
	if strings.Contains(text.String(), "exit_code=") {
		t.Errorf("text format leaked machine lines:\n%s", text.String())
	}

	var machine strings.Builder
	renderReport(&machine, sampleReport(false), "machine")
	out := machine.String()
	if !strings.Contains(out, "exit_code=0") || !strings.Contains(out, "step.add-industry-id=applied") {
		t.Errorf("machine format missing key-value lines:\n%s", out)
	}
	if strings.Contains(out, "Plan add-industry on sqlite") {
		t.Errorf("machine format leaked human section:\n%s", out)
	}
}
