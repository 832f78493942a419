package primitive

import (
	"context"
	"fmt"
	"strings"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
)

// AddColumn adds a column to an existing table. The probe checks column
// existence in the metadata catalogs; a column that already exists is always
// a skip, even when its type differs from the requested one (reconciling
// types is a higher-level concern, so the mismatch is only surfaced as a
// warning detail).
type AddColumn struct {
	spec patch.PrimitiveSpec
}

func (p *AddColumn) ID() string             { return p.spec.ID }
func (p *AddColumn) Kind() patch.Kind       { return patch.KindAddColumn }
func (p *AddColumn) DependsOn() []string    { return p.spec.DependsOn }
func (p *AddColumn) AppliesInBatches() bool { return false }

func (p *AddColumn) Description() string {
	if p.spec.Description != "" {
		return p.spec.Description
	}
	return fmt.Sprintf("Add column %s.%s (%s)", p.spec.Table, p.spec.Column, p.spec.Type)
}

func (p *AddColumn) Probe(ctx context.Context, db database.DBTX, drv database.Driver) (Result, error) {
	col, err := drv.ColumnInfo(ctx, db, p.spec.Table, p.spec.Column)
	if err != nil {
		return Result{}, err
	}
	if col == nil {
		return Result{Applied: false}, nil
	}

	if !typesEquivalent(col.Type, p.spec.Type) {
		return Result{
			Applied: true,
			Detail: fmt.Sprintf("column exists with type %q (wanted %q); leaving as is",
				col.Type, p.spec.Type),
		}, nil
	}
	return Result{Applied: true, Detail: "column already exists"}, nil
}

func (p *AddColumn) Apply(ctx context.Context, db database.DBTX, drv database.Driver) error {
	st := drv.AddColumn(p.spec.Table, p.column())
	return execAll(ctx, db, []database.Statement{st})
}

func (p *AddColumn) PlannedStatements(ctx context.Context, db database.DBTX, drv database.Driver) ([]database.Statement, error) {
	return []database.Statement{drv.AddColumn(p.spec.Table, p.column())}, nil
}

func (p *AddColumn) column() database.Column {
	return database.Column{
		Name:     p.spec.Column,
		Type:     p.spec.Type,
		Nullable: p.spec.Nullable,
		Default:  p.spec.Default,
	}
}

// typesEquivalent compares a live column type with the requested one,
// folding the common aliases so e.g. an "int4" column satisfies "integer".
func typesEquivalent(actual, wanted string) bool {
	return normalizeType(actual) == normalizeType(wanted)
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	// Strip a length suffix like varchar(200)
	if idx := strings.Index(t, "("); idx > 0 {
		t = t[:idx]
	}
	switch t {
	case "int", "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "bool":
		return "boolean"
	case "varchar", "character varying":
		return "varchar"
	case "timestamp with time zone":
		return "timestamptz"
	default:
		return t
	}
}
