package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/schemapatch/schemapatch/database"
)

// Prober implements database.Prober for PostgreSQL using information_schema
// and pg_catalog.
type Prober struct{}

// NewProber creates a new PostgreSQL prober
func NewProber() *Prober {
	return &Prober{}
}

// Tables returns all table names in the current schema
func (p *Prober) Tables(ctx context.Context, db database.DBTX) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tableNames []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tableNames = append(tableNames, tableName)
	}

	return tableNames, rows.Err()
}

// ReadTable returns the full definition of a table, or nil if it does not exist
func (p *Prober) ReadTable(ctx context.Context, db database.DBTX, tableName string) (*database.Table, error) {
	columns, err := p.columns(ctx, db, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
	}
	if len(columns) == 0 {
		// information_schema reports no columns for a missing table
		return nil, nil
	}

	table := &database.Table{Name: tableName, Columns: columns}

	indexes, err := p.indexes(ctx, db, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get indexes for table %s: %w", tableName, err)
	}
	table.Indexes = indexes

	foreignKeys, err := p.ForeignKeys(ctx, db, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", tableName, err)
	}
	table.ForeignKeys = foreignKeys

	return table, nil
}

// Schema reads the entire PostgreSQL schema
func (p *Prober) Schema(ctx context.Context, db database.DBTX) (*database.Schema, error) {
	schema := &database.Schema{
		Dialect: database.DialectPostgres,
		Tables:  make([]database.Table, 0),
	}

	tables, err := p.Tables(ctx, db)
	if err != nil {
		return nil, err
	}

	for _, tableName := range tables {
		table, err := p.ReadTable(ctx, db, tableName)
		if err != nil {
			return nil, err
		}
		if table != nil {
			schema.Tables = append(schema.Tables, *table)
		}
	}

	return schema, nil
}

// ColumnInfo returns a column's definition, or nil if the table or column
// does not exist
func (p *Prober) ColumnInfo(ctx context.Context, db database.DBTX, tableName, columnName string) (*database.Column, error) {
	columns, err := p.columns(ctx, db, tableName)
	if err != nil {
		return nil, err
	}
	for i := range columns {
		if columns[i].Name == columnName {
			return &columns[i], nil
		}
	}
	return nil, nil
}

func (p *Prober) columns(ctx context.Context, db database.DBTX, tableName string) ([]database.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			COALESCE(
				(SELECT true
				 FROM information_schema.table_constraints tc
				 JOIN information_schema.key_column_usage kcu
				   ON tc.constraint_name = kcu.constraint_name
				   AND tc.table_schema = kcu.table_schema
				 WHERE tc.table_name = c.table_name
				   AND tc.table_schema = c.table_schema
				   AND tc.constraint_type = 'PRIMARY KEY'
				   AND kcu.column_name = c.column_name),
				false
			) as is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema()
		  AND c.table_name = $1
		ORDER BY c.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var col database.Column
		var nullable string
		var defaultVal sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &defaultVal, &col.IsPrimaryKey); err != nil {
			return nil, err
		}

		col.Type = strings.TrimSpace(col.Type)

		// Detect SERIAL/BIGSERIAL pseudo-types: PostgreSQL stores them as
		// INTEGER/BIGINT with a nextval() default
		isSerial := false
		if defaultVal.Valid && isSerialDefault(defaultVal.String) {
			if strings.EqualFold(col.Type, "bigint") {
				col.Type = "bigserial"
				isSerial = true
			} else if strings.EqualFold(col.Type, "integer") {
				col.Type = "serial"
				isSerial = true
			}
		}

		col.Nullable = nullable == "YES"

		// For SERIAL/BIGSERIAL the default is implicit, so don't store it
		if !isSerial && defaultVal.Valid {
			normalized := normalizeDefault(defaultVal.String)
			col.Default = &normalized
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// indexes returns all indexes for a table, excluding those backing PRIMARY
// KEY or UNIQUE constraints
func (p *Prober) indexes(ctx context.Context, db database.DBTX, tableName string) ([]database.Index, error) {
	query := `
		SELECT
			c.relname,
			ix.indisunique,
			COALESCE(array_to_string(ARRAY(
				SELECT a.attname
				FROM unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
				ORDER BY k.ord
			), ','), '')
		FROM pg_class c
		JOIN pg_index ix ON ix.indexrelid = c.oid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema()
		  AND t.relname = $1
		  AND ix.indisprimary = false
		  AND NOT EXISTS (
			SELECT 1
			FROM pg_constraint con
			WHERE con.conindid = ix.indexrelid
			  AND con.contype IN ('p', 'u')
		  )
		ORDER BY c.relname
	`

	rows, err := db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("index query failed for table %q: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var indexes []database.Index
	for rows.Next() {
		var idx database.Index
		var columnList string

		if err := rows.Scan(&idx.Name, &idx.Unique, &columnList); err != nil {
			return nil, err
		}
		if columnList != "" {
			idx.Columns = strings.Split(columnList, ",")
		}

		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// ForeignKeys returns all foreign keys for a given PostgreSQL table
func (p *Prober) ForeignKeys(ctx context.Context, db database.DBTX, tableName string) ([]database.ForeignKey, error) {
	query := `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			rc.update_rule,
			rc.delete_rule
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints AS rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = current_schema()
			AND tc.table_name = $1
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	// Group by constraint name to handle multi-column foreign keys
	fkMap := make(map[string]*database.ForeignKey)
	var fkNames []string

	for rows.Next() {
		var constraintName, columnName, foreignTableName, foreignColumnName string
		var updateRule, deleteRule string

		if err := rows.Scan(&constraintName, &columnName, &foreignTableName, &foreignColumnName, &updateRule, &deleteRule); err != nil {
			return nil, err
		}

		if _, exists := fkMap[constraintName]; !exists {
			fk := &database.ForeignKey{
				Name:              constraintName,
				Columns:           []string{},
				ReferencedTable:   foreignTableName,
				ReferencedColumns: []string{},
			}

			if updateRule != "NO ACTION" {
				fk.OnUpdate = &updateRule
			}
			if deleteRule != "NO ACTION" {
				fk.OnDelete = &deleteRule
			}

			fkMap[constraintName] = fk
			fkNames = append(fkNames, constraintName)
		}

		fkMap[constraintName].Columns = append(fkMap[constraintName].Columns, columnName)
		fkMap[constraintName].ReferencedColumns = append(fkMap[constraintName].ReferencedColumns, foreignColumnName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var foreignKeys []database.ForeignKey
	for _, name := range fkNames {
		foreignKeys = append(foreignKeys, *fkMap[name])
	}

	return foreignKeys, nil
}

// FindIndex looks up an index by name in the current schema
func (p *Prober) FindIndex(ctx context.Context, db database.DBTX, name string) (*database.IndexInfo, error) {
	query := `
		SELECT t.relname, ix.indisunique
		FROM pg_class c
		JOIN pg_index ix ON ix.indexrelid = c.oid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema()
		  AND c.relname = $1
	`

	var info database.IndexInfo
	info.Name = name
	err := db.QueryRowContext(ctx, query, name).Scan(&info.Table, &info.Unique)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index lookup failed for %q: %w", name, err)
	}

	return &info, nil
}

// CountRowsWhere counts rows of table matching the caller-supplied predicate.
// The predicate is opaque configuration; it is interpolated, not parameterized,
// because it is an arbitrary SQL fragment.
func (p *Prober) CountRowsWhere(ctx context.Context, db database.DBTX, table, predicate string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, predicate)

	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("row count failed for table %q: %w", table, err)
	}
	return count, nil
}

// isSerialDefault checks if a default value is from a sequence (indicating SERIAL/BIGSERIAL)
func isSerialDefault(defaultVal string) bool {
	return strings.HasPrefix(defaultVal, "nextval(") && strings.Contains(defaultVal, "_seq")
}

// normalizeDefault normalizes PostgreSQL default values for comparison
// Removes type casts that are redundant (e.g., '{}'::jsonb -> '{}')
func normalizeDefault(defaultVal string) string {
	if idx := strings.LastIndex(defaultVal, "::"); idx > 0 {
		beforeCast := defaultVal[:idx]
		if strings.Count(beforeCast, "'")%2 == 0 {
			return beforeCast
		}
	}
	return defaultVal
}
