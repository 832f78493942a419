package primitive

import (
	"context"
	"fmt"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
)

// RenameIndex renames an existing index. When both the old and the new name
// exist at once the schema is in a state the rename cannot reason about, and
// the probe raises AmbiguousStateError instead of guessing.
type RenameIndex struct {
	spec patch.PrimitiveSpec
}

func (p *RenameIndex) ID() string             { return p.spec.ID }
func (p *RenameIndex) Kind() patch.Kind       { return patch.KindRenameIndex }
func (p *RenameIndex) DependsOn() []string    { return p.spec.DependsOn }
func (p *RenameIndex) AppliesInBatches() bool { return false }

func (p *RenameIndex) Description() string {
	if p.spec.Description != "" {
		return p.spec.Description
	}
	return fmt.Sprintf("Rename index %s to %s", p.spec.OldName, p.spec.NewName)
}

func (p *RenameIndex) Probe(ctx context.Context, db database.DBTX, drv database.Driver) (Result, error) {
	oldIdx, err := drv.FindIndex(ctx, db, p.spec.OldName)
	if err != nil {
		return Result{}, err
	}
	newIdx, err := drv.FindIndex(ctx, db, p.spec.NewName)
	if err != nil {
		return Result{}, err
	}

	switch {
	case oldIdx != nil && newIdx != nil:
		return Result{}, &patch.AmbiguousStateError{
			Detail: fmt.Sprintf("both index %q and index %q exist", p.spec.OldName, p.spec.NewName),
		}
	case newIdx != nil:
		return Result{Applied: true, Detail: fmt.Sprintf("index already named %s", p.spec.NewName)}, nil
	case oldIdx != nil:
		return Result{Applied: false}, nil
	default:
		return Result{Applied: false, Detail: fmt.Sprintf("index %q not found", p.spec.OldName)}, nil
	}
}

func (p *RenameIndex) Apply(ctx context.Context, db database.DBTX, drv database.Driver) error {
	idx, err := drv.FindIndex(ctx, db, p.spec.OldName)
	if err != nil {
		return err
	}
	if idx == nil {
		return fmt.Errorf("index %s does not exist", p.spec.OldName)
	}
	return execAll(ctx, db, drv.RenameIndex(*idx, p.spec.NewName))
}

func (p *RenameIndex) PlannedStatements(ctx context.Context, db database.DBTX, drv database.Driver) ([]database.Statement, error) {
	idx, err := drv.FindIndex(ctx, db, p.spec.OldName)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		idx = &database.IndexInfo{Index: database.Index{Name: p.spec.OldName}}
	}
	return drv.RenameIndex(*idx, p.spec.NewName), nil
}
