// Package primitive implements the built-in change primitives: atomic,
// named schema changes, each pairing a read-only probe with a mutation.
package primitive

import (
	"context"
	"fmt"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
)

// Result is the outcome of a probe.
type Result struct {
	// Applied reports whether the change's effect is already present.
	Applied bool
	// Detail carries optional context, such as the existing constraint name
	// or the number of rows still pending a backfill.
	Detail string
}

// Primitive is one atomic schema change. Probe is read-only, tolerates the
// target not existing, and is safe to run repeatedly. Apply must only be
// invoked after Probe reported the change absent within the same pass.
type Primitive interface {
	ID() string
	Kind() patch.Kind
	Description() string
	DependsOn() []string

	// Probe reports whether the change is already applied. Semantic
	// precondition violations (ConstraintConflictError, AmbiguousStateError)
	// are returned as errors; "not found" never is.
	Probe(ctx context.Context, db database.DBTX, drv database.Driver) (Result, error)

	// Apply performs the mutation.
	Apply(ctx context.Context, db database.DBTX, drv database.Driver) error

	// PlannedStatements previews the statements Apply would issue, for
	// dry runs and lock-impact analysis. Best effort: the preview of a
	// change whose target is missing may be incomplete.
	PlannedStatements(ctx context.Context, db database.DBTX, drv database.Driver) ([]database.Statement, error)

	// AppliesInBatches reports whether Apply commits work in bounded
	// batches and therefore must not be wrapped in a per-primitive
	// transaction by the executor.
	AppliesInBatches() bool
}

// FromSpec builds a primitive from its declarative spec. An unknown kind is
// a ConfigurationError.
func FromSpec(spec patch.PrimitiveSpec) (Primitive, error) {
	switch spec.Kind {
	case patch.KindAddColumn:
		return &AddColumn{spec: spec}, nil
	case patch.KindAddForeignKey:
		return &AddForeignKey{spec: spec}, nil
	case patch.KindBackfillColumn:
		return &BackfillColumn{spec: spec}, nil
	case patch.KindRenameIndex:
		return &RenameIndex{spec: spec}, nil
	default:
		return nil, &patch.ConfigurationError{Reason: fmt.Sprintf("%s has unknown kind %q", spec.ID, spec.Kind)}
	}
}

// FromPlan builds every primitive in plan order.
func FromPlan(plan *patch.Plan) ([]Primitive, error) {
	primitives := make([]Primitive, 0, len(plan.Primitives))
	for _, spec := range plan.Primitives {
		p, err := FromSpec(spec)
		if err != nil {
			return nil, err
		}
		primitives = append(primitives, p)
	}
	return primitives, nil
}

// execAll runs a sequence of statements, stopping at the first failure.
func execAll(ctx context.Context, db database.DBTX, statements []database.Statement) error {
	for _, st := range statements {
		if _, err := db.ExecContext(ctx, st.SQL); err != nil {
			return fmt.Errorf("%s: %w", st.Description, err)
		}
	}
	return nil
}
