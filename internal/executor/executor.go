// Package executor runs validated plans against a live database: advisory
// locking, probe-then-apply per primitive, transaction scoping and the final
// run report.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/fingerprint"
	"github.com/schemapatch/schemapatch/internal/patch"
	"github.com/schemapatch/schemapatch/internal/primitive"
)

// Executor runs plans against one database through one driver.
type Executor struct {
	db  *sql.DB
	drv database.Driver
}

func New(db *sql.DB, drv database.Driver) *Executor {
	return &Executor{db: db, drv: drv}
}

// Execute runs a finalized plan. The returned report is always non-nil when
// execution started; the error is non-nil for fatal conditions (bad plan,
// lock contention, probe failure) and for any run that left a primitive
// failed while stop-on-first-failure is set.
func (e *Executor) Execute(ctx context.Context, plan *patch.Plan, opts Options) (*Report, error) {
	prims, err := primitive.FromPlan(plan)
	if err != nil {
		return nil, err
	}

	if opts.Granularity == "" {
		opts.Granularity = GranularityPerPrimitive
	}

	report := &Report{
		Plan:        plan.Name,
		Driver:      e.drv.Name(),
		Granularity: opts.Granularity,
		DryRun:      opts.DryRun,
		Started:     time.Now(),
	}
	defer func() { report.Finished = time.Now() }()

	if opts.Granularity == GranularityPerPlan && !e.drv.SupportsFeature(database.FeatureTransactionalDDL) {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"%s does not support transactional DDL; falling back to per-primitive transactions", e.drv.Name()))
		report.Granularity = GranularityPerPrimitive
		opts.Granularity = GranularityPerPrimitive
	}

	if opts.DryRun {
		return report, e.dryRun(ctx, prims, opts, report)
	}

	lockKey := opts.LockKey
	if lockKey == "" {
		lockKey = plan.Name
	}
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to open lock connection: %w", err)
	}
	defer conn.Close()
	if err := e.drv.AcquireLock(ctx, conn, lockKey); err != nil {
		return report, fmt.Errorf("failed to acquire plan lock: %w", err)
	}
	defer func() {
		// Release on a fresh context so a cancelled run still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.drv.ReleaseLock(releaseCtx, conn, lockKey); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("failed to release plan lock: %v", err))
		}
	}()

	var runErr error
	if opts.Granularity == GranularityPerPlan {
		runErr = e.runPerPlan(ctx, prims, opts, report)
	} else {
		runErr = e.runPerPrimitive(ctx, prims, opts, report)
	}
	if runErr != nil {
		return report, runErr
	}

	verification, err := Verify(ctx, e.db, e.drv, prims, report)
	if err != nil {
		return report, err
	}
	report.Verification = verification

	if !report.Succeeded() {
		return report, errors.New("plan did not fully apply")
	}
	return report, nil
}

// dryRun probes every primitive and previews the statements the run would
// issue, bracketed by schema fingerprints proving nothing was mutated.
func (e *Executor) dryRun(ctx context.Context, prims []primitive.Primitive, opts Options, report *Report) error {
	before, err := e.fingerprint(ctx)
	if err != nil {
		return err
	}
	report.FingerprintBefore = before

	for _, p := range prims {
		started := time.Now()
		res, err := e.probe(ctx, p, opts)
		step := StepReport{ID: p.ID(), Kind: p.Kind(), Description: p.Description()}
		switch {
		case err != nil:
			step.Status = StatusFailed
			step.Err = err.Error()
		case res.Applied:
			step.Status = StatusSkipped
			step.Detail = res.Detail
			step.PreApplied = true
		default:
			statements, err := p.PlannedStatements(ctx, e.db, e.drv)
			step.Status = StatusPlanned
			if err != nil {
				step.Detail = res.Detail
			} else {
				step.Detail = fmt.Sprintf("%d statement(s)", len(statements))
			}
		}
		step.Duration = time.Since(started)
		report.add(step)
	}

	after, err := e.fingerprint(ctx)
	if err != nil {
		return err
	}
	report.FingerprintAfter = after
	if before != after {
		return &patch.AmbiguousStateError{
			Detail: fmt.Sprintf("schema changed during dry run: fingerprint %s became %s", before, after),
		}
	}
	return nil
}

// runPerPrimitive wraps each primitive in its own transaction, except
// batched primitives, which commit batch by batch on the bare connection.
func (e *Executor) runPerPrimitive(ctx context.Context, prims []primitive.Primitive, opts Options, report *Report) error {
	blocked := make(map[string]string) // id -> root failure id

	halted := ""
	for _, p := range prims {
		if halted != "" {
			report.add(StepReport{
				ID: p.ID(), Kind: p.Kind(), Description: p.Description(),
				Status: StatusSkipped,
				Detail: fmt.Sprintf("halted after failure of %s", halted),
			})
			continue
		}
		if root, ok := blockedBy(p, blocked); ok {
			blocked[p.ID()] = root
			report.add(StepReport{
				ID: p.ID(), Kind: p.Kind(), Description: p.Description(),
				Status: StatusSkipped,
				Detail: fmt.Sprintf("dependency %s failed", root),
			})
			continue
		}

		step, err := e.runOne(ctx, p, opts)
		report.add(step)

		if err != nil {
			if patch.IsFatal(err) {
				e.abortRemaining(prims, p, report)
				return err
			}
			blocked[p.ID()] = p.ID()
			if opts.StopOnFirstFailure {
				halted = p.ID()
			}
		}
	}
	return nil
}

// runOne probes and, if needed, applies a single primitive inside its own
// transaction. Batched primitives skip the wrapping transaction.
func (e *Executor) runOne(ctx context.Context, p primitive.Primitive, opts Options) (StepReport, error) {
	step := StepReport{ID: p.ID(), Kind: p.Kind(), Description: p.Description()}
	started := time.Now()
	defer func() { step.Duration = time.Since(started) }()

	if p.AppliesInBatches() {
		err := e.probeAndApply(ctx, e.db, p, opts, &step)
		return step, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		step.Status = StatusFailed
		step.Err = err.Error()
		return step, &patch.ApplyError{PrimitiveID: p.ID(), Err: err}
	}

	if err := e.probeAndApply(ctx, tx, p, opts, &step); err != nil {
		_ = tx.Rollback()
		return step, err
	}
	if step.Status != StatusApplied {
		_ = tx.Rollback() // probe-only, nothing to commit
		return step, nil
	}
	if err := tx.Commit(); err != nil {
		step.Status = StatusFailed
		step.Err = err.Error()
		return step, &patch.ApplyError{PrimitiveID: p.ID(), Err: err}
	}
	return step, nil
}

// probeAndApply runs the probe/apply pair on the given handle and fills in
// the step status.
func (e *Executor) probeAndApply(ctx context.Context, db database.DBTX, p primitive.Primitive, opts Options, step *StepReport) error {
	res, err := e.probeOn(ctx, db, p, opts)
	if err != nil {
		step.Status = StatusFailed
		step.Err = err.Error()
		return err
	}
	if res.Applied {
		step.Status = StatusSkipped
		step.Detail = res.Detail
		step.PreApplied = true
		return nil
	}

	applyCtx, cancel := e.stepContext(ctx, opts)
	defer cancel()
	if err := p.Apply(applyCtx, db, e.drv); err != nil {
		wrapped := classifyApplyErr(p.ID(), err)
		step.Status = StatusFailed
		step.Err = wrapped.Error()
		return wrapped
	}
	step.Status = StatusApplied
	step.Detail = res.Detail
	return nil
}

// runPerPlan wraps the whole plan in one transaction; any failure rolls the
// already-applied primitives back.
func (e *Executor) runPerPlan(ctx context.Context, prims []primitive.Primitive, opts Options, report *Report) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return &patch.ApplyError{PrimitiveID: "plan", Err: fmt.Errorf("failed to begin plan transaction: %w", err)}
	}

	blocked := make(map[string]string)
	var failure error
	for _, p := range prims {
		if root, ok := blockedBy(p, blocked); ok {
			blocked[p.ID()] = root
			report.add(StepReport{
				ID: p.ID(), Kind: p.Kind(), Description: p.Description(),
				Status: StatusSkipped,
				Detail: fmt.Sprintf("dependency %s failed", root),
			})
			continue
		}

		step := StepReport{ID: p.ID(), Kind: p.Kind(), Description: p.Description()}
		started := time.Now()
		err := e.probeAndApply(ctx, tx, p, opts, &step)
		step.Duration = time.Since(started)
		report.add(step)

		if err != nil {
			failure = err
			break
		}
	}

	if failure != nil {
		_ = tx.Rollback()
		for i := range report.Steps {
			if report.Steps[i].Status == StatusApplied {
				report.Steps[i].Status = StatusRolledBack
				report.Steps[i].Detail = "rolled back with the plan transaction"
			}
		}
		e.abortRemainingPerPlan(prims, report)
		return failure
	}

	if err := tx.Commit(); err != nil {
		for i := range report.Steps {
			if report.Steps[i].Status == StatusApplied {
				report.Steps[i].Status = StatusFailed
				report.Steps[i].Err = "plan transaction failed to commit"
			}
		}
		return &patch.ApplyError{PrimitiveID: "plan", Err: fmt.Errorf("failed to commit plan transaction: %w", err)}
	}
	return nil
}

func (e *Executor) probe(ctx context.Context, p primitive.Primitive, opts Options) (primitive.Result, error) {
	return e.probeOn(ctx, e.db, p, opts)
}

func (e *Executor) probeOn(ctx context.Context, db database.DBTX, p primitive.Primitive, opts Options) (primitive.Result, error) {
	probeCtx, cancel := e.stepContext(ctx, opts)
	defer cancel()
	res, err := p.Probe(probeCtx, db, e.drv)
	if err != nil {
		return res, classifyProbeErr(p.ID(), err)
	}
	return res, nil
}

func (e *Executor) stepContext(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.StepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opts.StepTimeout)
}

func (e *Executor) fingerprint(ctx context.Context) (string, error) {
	schema, err := e.drv.Schema(ctx, e.db)
	if err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	return fingerprint.Compute(schema)
}

// abortRemaining marks every primitive after the failed one as skipped.
func (e *Executor) abortRemaining(prims []primitive.Primitive, failed primitive.Primitive, report *Report) {
	seen := false
	for _, p := range prims {
		if p.ID() == failed.ID() {
			seen = true
			continue
		}
		if seen {
			report.add(StepReport{
				ID: p.ID(), Kind: p.Kind(), Description: p.Description(),
				Status: StatusSkipped,
				Detail: fmt.Sprintf("aborted after fatal error in %s", failed.ID()),
			})
		}
	}
}

func (e *Executor) abortRemainingPerPlan(prims []primitive.Primitive, report *Report) {
	reported := make(map[string]bool, len(report.Steps))
	for _, s := range report.Steps {
		reported[s.ID] = true
	}
	for _, p := range prims {
		if !reported[p.ID()] {
			report.add(StepReport{
				ID: p.ID(), Kind: p.Kind(), Description: p.Description(),
				Status: StatusSkipped,
				Detail: "plan transaction rolled back",
			})
		}
	}
}

// blockedBy reports whether any dependency of p failed or was itself blocked.
func blockedBy(p primitive.Primitive, blocked map[string]string) (string, bool) {
	for _, dep := range p.DependsOn() {
		if root, ok := blocked[dep]; ok {
			return root, true
		}
	}
	return "", false
}

// classifyProbeErr sorts a probe failure into the error taxonomy: semantic
// precondition violations pass through, deadline hits become TimeoutError,
// everything else is a fatal ProbeError.
func classifyProbeErr(id string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &patch.TimeoutError{PrimitiveID: id, Stage: "probe", Err: err}
	}
	var conflict *patch.ConstraintConflictError
	if errors.As(err, &conflict) {
		return err
	}
	var ambiguous *patch.AmbiguousStateError
	if errors.As(err, &ambiguous) {
		return err
	}
	return &patch.ProbeError{PrimitiveID: id, Err: err}
}

func classifyApplyErr(id string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &patch.TimeoutError{PrimitiveID: id, Stage: "apply", Err: err}
	}
	return &patch.ApplyError{PrimitiveID: id, Err: err}
}
