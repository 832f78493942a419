package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/schemapatch/schemapatch/database"
)

// Prober implements database.Prober for SQLite using sqlite_master and the
// table_info/index_list/foreign_key_list pragmas.
type Prober struct{}

// NewProber creates a new SQLite prober
func NewProber() *Prober {
	return &Prober{}
}

// Tables returns all user table names, excluding SQLite internals and the
// engine's own lock table.
func (p *Prober) Tables(ctx context.Context, db database.DBTX) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		AND name NOT LIKE '_schemapatch_%'
		ORDER BY name
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
		// PRAGMA table_info yields no rows for a missing table
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

// Schema reads the entire SQLite schema
func (p *Prober) Schema(ctx context.Context, db database.DBTX) (*database.Schema, error) {
	schema := &database.Schema{Dialect: database.DialectSQLite}

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
	// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
	query := fmt.Sprintf("PRAGMA table_info(%s)", tableName)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var cid int
		var col database.Column
		var notNull int
		var defaultVal sql.NullString
		var pk int

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}

		col.Nullable = notNull == 0
		col.IsPrimaryKey = pk > 0
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// indexes returns explicitly created indexes for a table, skipping the
// automatic ones SQLite creates for primary keys and unique constraints
func (p *Prober) indexes(ctx context.Context, db database.DBTX, tableName string) ([]database.Index, error) {
	// PRAGMA index_list returns: seq, name, unique, origin, partial
	query := fmt.Sprintf("PRAGMA index_list(%s)", tableName)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	type listed struct {
		name   string
		unique bool
		origin string
	}
	var names []listed
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		names = append(names, listed{name: name, unique: unique == 1, origin: origin})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []database.Index
	for _, l := range names {
		if l.origin != "c" || strings.HasPrefix(l.name, "sqlite_autoindex") {
			continue
		}
		columns, err := p.indexColumns(ctx, db, l.name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, database.Index{Name: l.name, Columns: columns, Unique: l.unique})
	}

	return indexes, nil
}

func (p *Prober) indexColumns(ctx context.Context, db database.DBTX, indexName string) ([]string, error) {
	// PRAGMA index_info returns: seqno, cid, name
	query := fmt.Sprintf("PRAGMA index_info(%s)", indexName)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			columns = append(columns, name.String)
		}
	}

	return columns, rows.Err()
}

// ForeignKeys returns all foreign keys for a given SQLite table. SQLite does
// not expose constraint names, so synthetic fk_<table>_<id> names are used.
func (p *Prober) ForeignKeys(ctx context.Context, db database.DBTX, tableName string) ([]database.ForeignKey, error) {
	// PRAGMA foreign_key_list returns: id, seq, table, from, to, on_update, on_delete, match
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", tableName)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	fkMap := make(map[int]*database.ForeignKey)
	var fkIds []int

	for rows.Next() {
		var id, seq int
		var table, from string
		var to sql.NullString
		var onUpdate, onDelete, match string

		if err := rows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		if _, exists := fkMap[id]; !exists {
			fk := &database.ForeignKey{
				Name:              fmt.Sprintf("fk_%s_%d", tableName, id),
				Columns:           []string{},
				ReferencedTable:   table,
				ReferencedColumns: []string{},
			}

			if onUpdate != "NO ACTION" {
				fk.OnUpdate = &onUpdate
			}
			if onDelete != "NO ACTION" {
				fk.OnDelete = &onDelete
			}

			fkMap[id] = fk
			fkIds = append(fkIds, id)
		}

		fkMap[id].Columns = append(fkMap[id].Columns, from)
		if to.Valid {
			fkMap[id].ReferencedColumns = append(fkMap[id].ReferencedColumns, to.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var foreignKeys []database.ForeignKey
	for _, id := range fkIds {
		foreignKeys = append(foreignKeys, *fkMap[id])
	}

	return foreignKeys, nil
}

// FindIndex looks up an index by name via sqlite_master
func (p *Prober) FindIndex(ctx context.Context, db database.DBTX, name string) (*database.IndexInfo, error) {
	var info database.IndexInfo
	var createSQL sql.NullString
	info.Name = name

	err := db.QueryRowContext(ctx,
		"SELECT tbl_name, sql FROM sqlite_master WHERE type = 'index' AND name = ?", name,
	).Scan(&info.Table, &createSQL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index lookup failed for %q: %w", name, err)
	}

	info.Unique = createSQL.Valid && strings.Contains(strings.ToUpper(createSQL.String), "UNIQUE")

	columns, err := p.indexColumns(ctx, db, name)
	if err != nil {
		return nil, err
	}
	info.Columns = columns

	return &info, nil
}

// CountRowsWhere counts rows of table matching the caller-supplied predicate
func (p *Prober) CountRowsWhere(ctx context.Context, db database.DBTX, table, predicate string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, predicate)

	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("row count failed for table %q: %w", table, err)
	}
	return count, nil
}
