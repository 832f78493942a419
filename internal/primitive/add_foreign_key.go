package primitive

import (
	"context"
	"fmt"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
)

// AddForeignKey adds a foreign key constraint on a single column. The probe
// matches existing constraints by covered column rather than by name alone:
// constraint names vary across schema-naming conventions (SQLite does not
// even expose them), so the column/reference pair is the reliable identity.
// A different foreign key already on the column is a ConstraintConflictError,
// never a silent skip.
type AddForeignKey struct {
	spec patch.PrimitiveSpec
}

func (p *AddForeignKey) ID() string             { return p.spec.ID }
func (p *AddForeignKey) Kind() patch.Kind       { return patch.KindAddForeignKey }
func (p *AddForeignKey) DependsOn() []string    { return p.spec.DependsOn }
func (p *AddForeignKey) AppliesInBatches() bool { return false }

func (p *AddForeignKey) Description() string {
	if p.spec.Description != "" {
		return p.spec.Description
	}
	return fmt.Sprintf("Add foreign key %s.%s -> %s.%s",
		p.spec.Table, p.spec.Column, p.spec.RefTable, p.refColumn())
}

func (p *AddForeignKey) Probe(ctx context.Context, db database.DBTX, drv database.Driver) (Result, error) {
	fks, err := drv.ForeignKeys(ctx, db, p.spec.Table)
	if err != nil {
		return Result{}, err
	}

	for _, fk := range fks {
		if !coversColumn(fk, p.spec.Column) {
			// A constraint under the wanted name that does not cover the
			// wanted column is a conflict too: applying would collide.
			if p.spec.Constraint != "" && fk.Name == p.spec.Constraint {
				return Result{}, &patch.ConstraintConflictError{
					Table:    p.spec.Table,
					Column:   p.spec.Column,
					Existing: fmt.Sprintf("%s on columns %v", fk.Name, fk.Columns),
					Wanted:   p.spec.RefTable,
				}
			}
			continue
		}

		if fk.ReferencedTable == p.spec.RefTable && referencesColumn(fk, p.refColumn()) {
			return Result{
				Applied: true,
				Detail:  fmt.Sprintf("constraint %s already present", fk.Name),
			}, nil
		}

		return Result{}, &patch.ConstraintConflictError{
			Table:    p.spec.Table,
			Column:   p.spec.Column,
			Existing: fmt.Sprintf("%s -> %s", fk.Name, fk.ReferencedTable),
			Wanted:   p.spec.RefTable,
		}
	}

	return Result{Applied: false}, nil
}

func (p *AddForeignKey) Apply(ctx context.Context, db database.DBTX, drv database.Driver) error {
	table, err := drv.ReadTable(ctx, db, p.spec.Table)
	if err != nil {
		return err
	}
	if table == nil {
		return fmt.Errorf("table %s does not exist", p.spec.Table)
	}
	return execAll(ctx, db, drv.AddForeignKey(*table, p.foreignKey()))
}

func (p *AddForeignKey) PlannedStatements(ctx context.Context, db database.DBTX, drv database.Driver) ([]database.Statement, error) {
	table, err := drv.ReadTable(ctx, db, p.spec.Table)
	if err != nil {
		return nil, err
	}
	if table == nil {
		// Preview only: the table may be created by an earlier primitive
		// in the same plan.
		table = &database.Table{Name: p.spec.Table}
	}
	return drv.AddForeignKey(*table, p.foreignKey()), nil
}

func (p *AddForeignKey) foreignKey() database.ForeignKey {
	fk := database.ForeignKey{
		Name:              p.constraintName(),
		Columns:           []string{p.spec.Column},
		ReferencedTable:   p.spec.RefTable,
		ReferencedColumns: []string{p.refColumn()},
	}
	if p.spec.OnDelete != "" {
		onDelete := p.spec.OnDelete
		fk.OnDelete = &onDelete
	}
	return fk
}

func (p *AddForeignKey) constraintName() string {
	if p.spec.Constraint != "" {
		return p.spec.Constraint
	}
	return fmt.Sprintf("fk_%s_%s", p.spec.Table, p.spec.Column)
}

func (p *AddForeignKey) refColumn() string {
	if p.spec.RefColumn != "" {
		return p.spec.RefColumn
	}
	return "id"
}

func coversColumn(fk database.ForeignKey, column string) bool {
	return len(fk.Columns) == 1 && fk.Columns[0] == column
}

func referencesColumn(fk database.ForeignKey, column string) bool {
	// SQLite omits the referenced column when the FK targets the primary key
	return len(fk.ReferencedColumns) == 0 || (len(fk.ReferencedColumns) == 1 && fk.ReferencedColumns[0] == column)
}
