package postgres

import (
	"fmt"
	"strings"

	"github.com/schemapatch/schemapatch/database"
)

// Generator implements database.DDLGenerator for PostgreSQL
type Generator struct{}

// NewGenerator creates a new PostgreSQL SQL generator
func NewGenerator() *Generator {
	return &Generator{}
}

// AddColumn generates PostgreSQL SQL to add a column
func (g *Generator) AddColumn(tableName string, col database.Column) database.Statement {
	return database.Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
			tableName, g.FormatColumnDefinition(col)),
		Description: fmt.Sprintf("Add column %s to table %s", col.Name, tableName),
	}
}

// AddForeignKey generates PostgreSQL SQL to add a foreign key constraint.
// PostgreSQL supports ALTER TABLE ADD CONSTRAINT directly, so the current
// table definition is not needed.
func (g *Generator) AddForeignKey(table database.Table, fk database.ForeignKey) []database.Statement {
	columns := strings.Join(fk.Columns, ", ")
	refColumns := strings.Join(fk.ReferencedColumns, ", ")

	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		table.Name, fk.Name, columns, fk.ReferencedTable, refColumns)

	if fk.OnDelete != nil {
		sql += fmt.Sprintf(" ON DELETE %s", *fk.OnDelete)
	}
	if fk.OnUpdate != nil {
		sql += fmt.Sprintf(" ON UPDATE %s", *fk.OnUpdate)
	}

	return []database.Statement{{
		SQL:         sql,
		Description: fmt.Sprintf("Add foreign key %s to table %s", fk.Name, table.Name),
	}}
}

// RenameIndex generates PostgreSQL SQL to rename an index
func (g *Generator) RenameIndex(idx database.IndexInfo, newName string) []database.Statement {
	return []database.Statement{{
		SQL:         fmt.Sprintf("ALTER INDEX %s RENAME TO %s", idx.Name, newName),
		Description: fmt.Sprintf("Rename index %s to %s", idx.Name, newName),
	}}
}

// BackfillBatch generates one bounded batch of a backfill update. The batch
// is limited through ctid selection so each statement touches at most
// batchSize rows regardless of table size.
func (g *Generator) BackfillBatch(table, column, sourceExpr, predicate string, batchSize int) database.Statement {
	return database.Statement{
		SQL: fmt.Sprintf(
			"UPDATE %s SET %s = (%s) WHERE ctid IN (SELECT ctid FROM %s WHERE %s LIMIT %d)",
			table, column, sourceExpr, table, predicate, batchSize),
		Description: fmt.Sprintf("Backfill %s.%s (batch of up to %d rows)", table, column, batchSize),
	}
}

// FormatColumnDefinition formats a column definition for CREATE/ALTER statements
func (g *Generator) FormatColumnDefinition(col database.Column) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s", col.Name, col.Type))

	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}

	if col.Default != nil {
		sb.WriteString(fmt.Sprintf(" DEFAULT %s", *col.Default))
	}

	if col.IsPrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}

	return sb.String()
}

// ParameterPlaceholder returns the PostgreSQL parameter placeholder ($1, $2, etc.)
func (g *Generator) ParameterPlaceholder(position int) string {
	return fmt.Sprintf("$%d", position)
}
