package sqlite

import (
	"fmt"
	"strings"

	"github.com/schemapatch/schemapatch/database"
)

// Generator implements database.DDLGenerator for SQLite
type Generator struct{}

// NewGenerator creates a new SQLite SQL generator
func NewGenerator() *Generator {
	return &Generator{}
}

// AddColumn generates SQLite SQL to add a column
func (g *Generator) AddColumn(tableName string, col database.Column) database.Statement {
	return database.Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
			tableName, g.FormatColumnDefinition(col)),
		Description: fmt.Sprintf("Add column %s to table %s", col.Name, tableName),
	}
}

// AddForeignKey generates the statements adding a foreign key to an existing
// table. SQLite has no ALTER TABLE ADD CONSTRAINT, so the standard pattern is
// table recreation: create a _new table with the constraint, copy rows, drop
// the original, rename, then recreate the original table's indexes (dropped
// along with the table).
func (g *Generator) AddForeignKey(table database.Table, fk database.ForeignKey) []database.Statement {
	tmpTableName := fmt.Sprintf("%s_new", table.Name)

	newTable := table
	newTable.Name = tmpTableName
	newTable.ForeignKeys = append(append([]database.ForeignKey{}, table.ForeignKeys...), fk)

	columnNames := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		columnNames[i] = col.Name
	}
	columnsStr := strings.Join(columnNames, ", ")

	steps := []database.Statement{
		{
			SQL:         g.createTable(newTable),
			Description: fmt.Sprintf("Create %s with foreign key %s", tmpTableName, fk.Name),
		},
		{
			SQL:         fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmpTableName, columnsStr, columnsStr, table.Name),
			Description: fmt.Sprintf("Copy rows from %s to %s", table.Name, tmpTableName),
		},
		{
			SQL:         fmt.Sprintf("DROP TABLE %s", table.Name),
			Description: fmt.Sprintf("Drop original table %s", table.Name),
		},
		{
			SQL:         fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmpTableName, table.Name),
			Description: fmt.Sprintf("Rename %s to %s", tmpTableName, table.Name),
		},
	}

	for _, idx := range table.Indexes {
		steps = append(steps, database.Statement{
			SQL:         g.createIndex(table.Name, idx),
			Description: fmt.Sprintf("Recreate index %s on table %s", idx.Name, table.Name),
		})
	}

	return steps
}

// RenameIndex generates the statements renaming an index. SQLite has no
// ALTER INDEX RENAME, so the index is dropped and recreated under the new
// name from its probed definition.
func (g *Generator) RenameIndex(idx database.IndexInfo, newName string) []database.Statement {
	renamed := idx.Index
	renamed.Name = newName

	return []database.Statement{
		{
			SQL:         fmt.Sprintf("DROP INDEX %s", idx.Name),
			Description: fmt.Sprintf("Drop index %s from table %s", idx.Name, idx.Table),
		},
		{
			SQL:         g.createIndex(idx.Table, renamed),
			Description: fmt.Sprintf("Create index %s on table %s", newName, idx.Table),
		},
	}
}

// BackfillBatch generates one bounded batch of a backfill update using rowid
// selection to cap the number of touched rows.
func (g *Generator) BackfillBatch(table, column, sourceExpr, predicate string, batchSize int) database.Statement {
	return database.Statement{
		SQL: fmt.Sprintf(
			"UPDATE %s SET %s = (%s) WHERE rowid IN (SELECT rowid FROM %s WHERE %s LIMIT %d)",
			table, column, sourceExpr, table, predicate, batchSize),
		Description: fmt.Sprintf("Backfill %s.%s (batch of up to %d rows)", table, column, batchSize),
	}
}

// createTable renders a full CREATE TABLE statement including foreign key
// constraints, which SQLite only accepts at table creation time.
func (g *Generator) createTable(table database.Table) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("CREATE TABLE %s (\n", table.Name))

	for i, col := range table.Columns {
		sb.WriteString("  ")
		sb.WriteString(g.FormatColumnDefinition(col))
		if i < len(table.Columns)-1 || len(table.ForeignKeys) > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}

	for i, fk := range table.ForeignKeys {
		sb.WriteString("  ")
		sb.WriteString(g.FormatForeignKeyConstraint(fk))
		if i < len(table.ForeignKeys)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(")")
	return sb.String()
}

func (g *Generator) createIndex(tableName string, idx database.Index) string {
	uniqueStr := ""
	if idx.Unique {
		uniqueStr = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		uniqueStr, idx.Name, tableName, strings.Join(idx.Columns, ", "))
}

// FormatColumnDefinition formats a column definition for CREATE/ALTER statements
func (g *Generator) FormatColumnDefinition(col database.Column) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s", col.Name, col.Type))

	// Primary key must come before NOT NULL in SQLite
	if col.IsPrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}

	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}

	if col.Default != nil {
		sb.WriteString(fmt.Sprintf(" DEFAULT %s", *col.Default))
	}

	return sb.String()
}

// FormatForeignKeyConstraint formats a foreign key constraint for CREATE TABLE
func (g *Generator) FormatForeignKeyConstraint(fk database.ForeignKey) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		fk.Name,
		strings.Join(fk.Columns, ", "),
		fk.ReferencedTable,
		strings.Join(fk.ReferencedColumns, ", ")))

	if fk.OnDelete != nil {
		sb.WriteString(fmt.Sprintf(" ON DELETE %s", *fk.OnDelete))
	}
	if fk.OnUpdate != nil {
		sb.WriteString(fmt.Sprintf(" ON UPDATE %s", *fk.OnUpdate))
	}

	return sb.String()
}

// ParameterPlaceholder returns the SQLite parameter placeholder (?)
func (g *Generator) ParameterPlaceholder(position int) string {
	return "?"
}
