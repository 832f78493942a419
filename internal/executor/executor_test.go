package executor

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/database/sqlite"
	"github.com/schemapatch/schemapatch/internal/patch"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedBookings(t *testing.T, db *sql.DB) {
	t.Helper()
	statements := []string{
		"CREATE TABLE industries (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
		"CREATE TABLE users (id INTEGER PRIMARY KEY, industry_id BIGINT NOT NULL)",
		"CREATE TABLE bookings (id INTEGER PRIMARY KEY, user_id BIGINT NOT NULL)",
		"CREATE INDEX idx_old_bookings_user ON bookings (user_id)",
		"INSERT INTO industries (id, name) VALUES (1, 'aviation'), (2, 'shipping')",
		"INSERT INTO users (id, industry_id) VALUES (1, 1), (2, 2)",
		"INSERT INTO bookings (id, user_id) VALUES (1, 1), (2, 2), (3, 1)",
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to execute %q: %v", stmt, err)
		}
	}
}

func bookingsPlan(t *testing.T) *patch.Plan {
	t.Helper()
	plan := &patch.Plan{
		Name: "bookings-industry",
		Primitives: []patch.PrimitiveSpec{
			{
				ID: "add-industry-id", Kind: patch.KindAddColumn,
				Table: "bookings", Column: "industry_id", Type: "BIGINT", Nullable: true,
			},
			{
				ID: "backfill-industry-id", Kind: patch.KindBackfillColumn,
				DependsOn: []string{"add-industry-id"},
				Table:     "bookings", Column: "industry_id",
				SourceExpression: "(SELECT industry_id FROM users WHERE users.id = bookings.user_id)",
				Predicate:        "industry_id IS NULL",
				BatchSize:        2,
			},
			{
				ID: "rename-bookings-user-idx", Kind: patch.KindRenameIndex,
				OldName: "idx_old_bookings_user", NewName: "idx_bookings_user_id",
			},
		},
	}
	if err := patch.Finalize(plan); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return plan
}

func statusOf(t *testing.T, report *Report, id string) StepReport {
	t.Helper()
	for _, s := range report.Steps {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("no step %q in report: %+v", id, report.Steps)
	return StepReport{}
}

func TestExecuteAppliesPlanThenSkipsOnRerun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, sqlite.NewDriver())
	plan := bookingsPlan(t)

	report, err := exec.Execute(ctx, plan, DefaultOptions())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	applied, skipped, failed := report.Counts()
	if applied != 3 || skipped != 0 || failed != 0 {
		t.Fatalf("expected 3 applied, got applied=%d skipped=%d failed=%d", applied, skipped, failed)
	}
	if report.Verification == nil || !report.Verification.OK() {
		t.Errorf("expected passing verification, got %+v", report.Verification)
	}
	if report.ExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", report.ExitCode())
	}

	var pending int
	if err := db.QueryRow("SELECT COUNT(*) FROM bookings WHERE industry_id IS NULL").Scan(&pending); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if pending != 0 {
		t.Errorf("expected backfill complete, %d rows pending", pending)
	}

	// The plan must be safe to re-run: every primitive probes as applied.
	report, err = exec.Execute(ctx, plan, DefaultOptions())
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	applied, skipped, failed = report.Counts()
	if applied != 0 || skipped != 3 || failed != 0 {
		t.Fatalf("expected 3 skipped on rerun, got applied=%d skipped=%d failed=%d", applied, skipped, failed)
	}
	for _, s := range report.Steps {
		if !s.PreApplied {
			t.Errorf("rerun skip of %s must be marked pre-applied", s.ID)
		}
	}
}

func TestExecuteDryRunLeavesDatabaseUntouched(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, sqlite.NewDriver())
	plan := bookingsPlan(t)

	opts := DefaultOptions()
	opts.DryRun = true
	report, err := exec.Execute(ctx, plan, opts)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	for _, s := range report.Steps {
		if s.Status != StatusPlanned {
			t.Errorf("expected step %s planned, got %s", s.ID, s.Status)
		}
	}
	if report.FingerprintBefore == "" || report.FingerprintBefore != report.FingerprintAfter {
		t.Errorf("fingerprints must match across a dry run: %q vs %q",
			report.FingerprintBefore, report.FingerprintAfter)
	}

	drv := sqlite.NewDriver()
	col, err := drv.ColumnInfo(ctx, db, "bookings", "industry_id")
	if err != nil {
		t.Fatalf("column lookup failed: %v", err)
	}
	if col != nil {
		t.Error("dry run must not add the column")
	}
}

func TestExecuteStopOnFirstFailureHaltsRemaining(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, sqlite.NewDriver())

	plan := &patch.Plan{
		Name: "halting",
		Primitives: []patch.PrimitiveSpec{
			{ID: "bad-rename", Kind: patch.KindRenameIndex, OldName: "idx_missing", NewName: "idx_present"},
			{ID: "add-industry-id", Kind: patch.KindAddColumn,
				Table: "bookings", Column: "industry_id", Type: "BIGINT", Nullable: true},
		},
	}
	if err := patch.Finalize(plan); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	report, err := exec.Execute(ctx, plan, DefaultOptions())
	if err == nil {
		t.Fatal("expected an error from a failed plan")
	}
	if statusOf(t, report, "bad-rename").Status != StatusFailed {
		t.Errorf("expected bad-rename failed, got %s", statusOf(t, report, "bad-rename").Status)
	}
	halted := statusOf(t, report, "add-industry-id")
	if halted.Status != StatusSkipped || halted.PreApplied {
		t.Errorf("expected add-industry-id halted-skipped, got %+v", halted)
	}
	if !strings.Contains(halted.Detail, "bad-rename") {
		t.Errorf("halt detail must name the failed primitive, got %q", halted.Detail)
	}
	if report.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %d", report.ExitCode())
	}
}

func TestExecuteContinueOnErrorSkipsOnlyDependents(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, sqlite.NewDriver())

	plan := &patch.Plan{
		Name: "continuing",
		Primitives: []patch.PrimitiveSpec{
			{ID: "bad-rename", Kind: patch.KindRenameIndex, OldName: "idx_missing", NewName: "idx_present"},
			{ID: "dependent-rename", Kind: patch.KindRenameIndex,
				DependsOn: []string{"bad-rename"},
				OldName:   "idx_present", NewName: "idx_final"},
			{ID: "add-industry-id", Kind: patch.KindAddColumn,
				Table: "bookings", Column: "industry_id", Type: "BIGINT", Nullable: true},
		},
	}
	if err := patch.Finalize(plan); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	opts := DefaultOptions()
	opts.StopOnFirstFailure = false
	report, err := exec.Execute(ctx, plan, opts)
	if err == nil {
		t.Fatal("expected an error from a failed plan")
	}

	if statusOf(t, report, "bad-rename").Status != StatusFailed {
		t.Errorf("expected bad-rename failed")
	}
	dep := statusOf(t, report, "dependent-rename")
	if dep.Status != StatusSkipped || !strings.Contains(dep.Detail, "bad-rename") {
		t.Errorf("expected dependent skipped naming bad-rename, got %+v", dep)
	}
	if statusOf(t, report, "add-industry-id").Status != StatusApplied {
		t.Errorf("independent primitive must still apply, got %s",
			statusOf(t, report, "add-industry-id").Status)
	}
}

func TestRenderMachineKeyValues(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, sqlite.NewDriver())
	plan := bookingsPlan(t)

	report, err := exec.Execute(ctx, plan, DefaultOptions())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var buf bytes.Buffer
	report.RenderMachine(&buf)
	out := buf.String()

	for _, want := range []string{
		"plan=bookings-industry\n",
		"driver=sqlite\n",
		"applied=3\n",
		"failed=0\n",
		"step.add-industry-id=applied\n",
		"step.backfill-industry-id=applied\n",
		"verified=true\n",
		"exit_code=0\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("machine output missing %q:\n%s", want, out)
		}
	}
}

// noTxDDLDriver pretends DDL cannot run inside a transaction.
type noTxDDLDriver struct {
	*sqlite.Driver
}

func (d noTxDDLDriver) SupportsFeature(feature string) bool {
	if feature == database.FeatureTransactionalDDL {
		return false
	}
	return d.Driver.SupportsFeature(feature)
}

func TestExecutePerPlanFallsBackWithoutTransactionalDDL(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, noTxDDLDriver{sqlite.NewDriver()})
	plan := bookingsPlan(t)

	opts := DefaultOptions()
	opts.Granularity = GranularityPerPlan
	report, err := exec.Execute(ctx, plan, opts)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if report.Granularity != GranularityPerPrimitive {
		t.Errorf("expected fallback to per-primitive, got %s", report.Granularity)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected a fallback warning")
	}
}

func TestExecutePerPlanRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, sqlite.NewDriver())

	plan := &patch.Plan{
		Name: "atomic",
		Primitives: []patch.PrimitiveSpec{
			{ID: "add-industry-id", Kind: patch.KindAddColumn,
				Table: "bookings", Column: "industry_id", Type: "BIGINT", Nullable: true},
			{ID: "bad-rename", Kind: patch.KindRenameIndex, OldName: "idx_missing", NewName: "idx_present"},
		},
	}
	if err := patch.Finalize(plan); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	opts := DefaultOptions()
	opts.Granularity = GranularityPerPlan
	report, err := exec.Execute(ctx, plan, opts)
	if err == nil {
		t.Fatal("expected an error from a failed plan")
	}
	if statusOf(t, report, "add-industry-id").Status != StatusRolledBack {
		t.Errorf("expected add-industry-id rolled back, got %s",
			statusOf(t, report, "add-industry-id").Status)
	}

	drv := sqlite.NewDriver()
	col, err := drv.ColumnInfo(ctx, db, "bookings", "industry_id")
	if err != nil {
		t.Fatalf("column lookup failed: %v", err)
	}
	if col != nil {
		t.Error("rolled-back column must not exist after the run")
	}
}

// stalledCatalogDriver hangs on column lookups until the context expires,
// simulating a catalog query stuck behind a lock.
type stalledCatalogDriver struct {
	*sqlite.Driver
}

func (d stalledCatalogDriver) ColumnInfo(ctx context.Context, db database.DBTX, table, column string) (*database.Column, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecuteStepTimeoutFailsSlowStep(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, stalledCatalogDriver{sqlite.NewDriver()})

	plan := &patch.Plan{
		Name: "slow",
		Primitives: []patch.PrimitiveSpec{
			{ID: "add-industry-id", Kind: patch.KindAddColumn,
				Table: "bookings", Column: "industry_id", Type: "BIGINT", Nullable: true},
		},
	}
	if err := patch.Finalize(plan); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	opts := DefaultOptions()
	opts.StepTimeout = 25 * time.Millisecond
	report, err := exec.Execute(ctx, plan, opts)
	if err == nil {
		t.Fatal("expected an error from a timed-out plan")
	}

	step := statusOf(t, report, "add-industry-id")
	if step.Status != StatusFailed {
		t.Fatalf("expected add-industry-id failed, got %s", step.Status)
	}
	if !strings.Contains(step.Err, "probe timed out for add-industry-id") {
		t.Errorf("step error must name the timed-out stage and primitive, got %q", step.Err)
	}
	if report.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %d", report.ExitCode())
	}
}

// brokenCatalogDriver fails every column lookup outright, as if the
// metadata catalogs were unreadable.
type brokenCatalogDriver struct {
	*sqlite.Driver
}

func (d brokenCatalogDriver) ColumnInfo(ctx context.Context, db database.DBTX, table, column string) (*database.Column, error) {
	return nil, errors.New("catalog unavailable")
}

func TestExecuteFatalProbeFailureAbortsRemaining(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBookings(t, db)
	exec := New(db, brokenCatalogDriver{sqlite.NewDriver()})

	plan := &patch.Plan{
		Name: "broken-catalog",
		Primitives: []patch.PrimitiveSpec{
			{ID: "add-industry-id", Kind: patch.KindAddColumn,
				Table: "bookings", Column: "industry_id", Type: "BIGINT", Nullable: true},
			{ID: "rename-bookings-user-idx", Kind: patch.KindRenameIndex,
				OldName: "idx_old_bookings_user", NewName: "idx_bookings_user_id"},
		},
	}
	if err := patch.Finalize(plan); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	report, err := exec.Execute(ctx, plan, DefaultOptions())
	if err == nil {
		t.Fatal("expected an error from an unreadable catalog")
	}
	var probeErr *patch.ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected a ProbeError, got %T: %v", err, err)
	}
	if !patch.IsFatal(err) {
		t.Error("catalog failure must be fatal for the plan")
	}

	if statusOf(t, report, "add-industry-id").Status != StatusFailed {
		t.Errorf("expected add-industry-id failed, got %s",
			statusOf(t, report, "add-industry-id").Status)
	}
	aborted := statusOf(t, report, "rename-bookings-user-idx")
	if aborted.Status != StatusSkipped || aborted.PreApplied {
		t.Errorf("expected rename aborted-skipped, got %+v", aborted)
	}
	if !strings.Contains(aborted.Detail, "aborted after fatal error in add-industry-id") {
		t.Errorf("abort detail must name the failed primitive, got %q", aborted.Detail)
	}

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_old_bookings_user'").Scan(&name)
	if err != nil {
		t.Fatalf("index lookup failed: %v", err)
	}
}
