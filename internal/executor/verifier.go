package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
	"github.com/schemapatch/schemapatch/internal/primitive"
)

// Mismatch is one primitive whose postcondition does not hold.
type Mismatch struct {
	PrimitiveID string `json:"primitive_id"`
	Detail      string `json:"detail"`
}

// VerificationResult is the outcome of the post-run verification pass.
type VerificationResult struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func (v *VerificationResult) OK() bool { return len(v.Mismatches) == 0 }

// Verify re-probes every primitive the run left applied or skipped-as-applied
// and reports those whose effect is not observable. A mismatch means the
// engine accepted a statement without producing the expected state, which the
// executor cannot repair on its own.
func Verify(ctx context.Context, db *sql.DB, drv database.Driver, prims []primitive.Primitive, report *Report) (*VerificationResult, error) {
	byID := make(map[string]primitive.Primitive, len(prims))
	for _, p := range prims {
		byID[p.ID()] = p
	}

	result := &VerificationResult{}
	for _, step := range report.Steps {
		if !step.settled() {
			continue
		}
		p := byID[step.ID]
		if p == nil {
			continue
		}

		result.Checked++
		res, err := p.Probe(ctx, db, drv)
		if err != nil {
			return nil, &patch.ProbeError{PrimitiveID: p.ID(), Err: fmt.Errorf("verification re-probe: %w", err)}
		}
		if !res.Applied {
			detail := res.Detail
			if detail == "" {
				detail = "effect not observable after apply"
			}
			result.Mismatches = append(result.Mismatches, Mismatch{PrimitiveID: p.ID(), Detail: detail})
		}
	}
	return result, nil
}

// settled reports whether a step claims its effect is present: it applied in
// this run, or the probe found it already applied. Steps skipped for other
// reasons (halted run, blocked dependency) have nothing to verify.
func (s StepReport) settled() bool {
	return s.Status == StatusApplied || (s.Status == StatusSkipped && s.PreApplied)
}
