package primitive

import (
	"context"
	"fmt"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
)

// BackfillColumn populates a column in bounded batches until no rows match
// the predicate. The probe counts matching rows, so a backfill interrupted
// halfway resumes from where it stopped on the next run.
type BackfillColumn struct {
	spec patch.PrimitiveSpec
}

func (p *BackfillColumn) ID() string             { return p.spec.ID }
func (p *BackfillColumn) Kind() patch.Kind       { return patch.KindBackfillColumn }
func (p *BackfillColumn) DependsOn() []string    { return p.spec.DependsOn }
func (p *BackfillColumn) AppliesInBatches() bool { return true }

func (p *BackfillColumn) Description() string {
	if p.spec.Description != "" {
		return p.spec.Description
	}
	return fmt.Sprintf("Backfill %s.%s", p.spec.Table, p.spec.Column)
}

func (p *BackfillColumn) Probe(ctx context.Context, db database.DBTX, drv database.Driver) (Result, error) {
	// Counting against a missing column would surface an engine error, so
	// check existence first. A missing column is simply "not applied": the
	// add_column primitive this one depends on has not run yet.
	col, err := drv.ColumnInfo(ctx, db, p.spec.Table, p.spec.Column)
	if err != nil {
		return Result{}, err
	}
	if col == nil {
		return Result{Applied: false, Detail: "column does not exist yet"}, nil
	}

	remaining, err := drv.CountRowsWhere(ctx, db, p.spec.Table, p.spec.Predicate)
	if err != nil {
		return Result{}, err
	}
	if remaining == 0 {
		return Result{Applied: true, Detail: "no rows match the predicate"}, nil
	}
	return Result{Applied: false, Detail: fmt.Sprintf("%d rows pending", remaining)}, nil
}

func (p *BackfillColumn) Apply(ctx context.Context, db database.DBTX, drv database.Driver) error {
	batchSize := p.batchSize()
	st := drv.BackfillBatch(p.spec.Table, p.spec.Column, p.spec.SourceExpression, p.spec.Predicate, batchSize)

	previous := int64(-1)
	for {
		remaining, err := drv.CountRowsWhere(ctx, db, p.spec.Table, p.spec.Predicate)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return nil
		}
		// The update must shrink the matching set each batch; a source
		// expression that leaves rows matching the predicate would loop
		// forever otherwise.
		if previous >= 0 && remaining >= previous {
			return fmt.Errorf("backfill of %s.%s is not converging: %d rows still match after a batch",
				p.spec.Table, p.spec.Column, remaining)
		}
		previous = remaining

		if _, err := db.ExecContext(ctx, st.SQL); err != nil {
			return fmt.Errorf("%s: %w", st.Description, err)
		}
	}
}

func (p *BackfillColumn) PlannedStatements(ctx context.Context, db database.DBTX, drv database.Driver) ([]database.Statement, error) {
	return []database.Statement{
		drv.BackfillBatch(p.spec.Table, p.spec.Column, p.spec.SourceExpression, p.spec.Predicate, p.batchSize()),
	}, nil
}

func (p *BackfillColumn) batchSize() int {
	if p.spec.BatchSize > 0 {
		return p.spec.BatchSize
	}
	return patch.DefaultBatchSize
}
