package database

import (
	"context"
	"database/sql"
)

// Dialect identifies the SQL dialect a driver speaks.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Schema represents an introspected database schema
type Schema struct {
	Dialect Dialect `json:"dialect,omitempty"`
	Tables  []Table `json:"tables"`
}

// Table represents a database table
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	Indexes     []Index      `json:"indexes"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Column represents a table column
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// Index represents a table index
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// IndexInfo is an index together with the table it belongs to, as returned
// by a metadata lookup by index name.
type IndexInfo struct {
	Index
	Table string `json:"table"`
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
	OnDelete          *string  `json:"on_delete,omitempty"`
	OnUpdate          *string  `json:"on_update,omitempty"`
}

// Statement is a single SQL statement paired with a human-readable description.
type Statement struct {
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// DBTX is the subset of database/sql that probes and applies run against.
// Satisfied by *sql.DB, *sql.Conn and *sql.Tx, so the same probe code works
// inside and outside an executor-scoped transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Prober defines read-only schema metadata inspection. Implementations must
// treat "target not found" as a normal result, never an error: a missing
// table, column or index reports absence. Errors are reserved for genuine
// metadata-access failures.
type Prober interface {
	// Tables returns all user table names.
	Tables(ctx context.Context, db DBTX) ([]string, error)

	// ReadTable returns the full definition of a table, or nil if the table
	// does not exist.
	ReadTable(ctx context.Context, db DBTX, table string) (*Table, error)

	// Schema reads the entire schema. Used for fingerprinting.
	Schema(ctx context.Context, db DBTX) (*Schema, error)

	// ColumnInfo returns a column's definition, or nil if the table or
	// column does not exist.
	ColumnInfo(ctx context.Context, db DBTX, table, column string) (*Column, error)

	// ForeignKeys returns all foreign keys declared on a table. An absent
	// table yields an empty slice.
	ForeignKeys(ctx context.Context, db DBTX, table string) ([]ForeignKey, error)

	// FindIndex looks up an index by name, or nil if no such index exists.
	FindIndex(ctx context.Context, db DBTX, name string) (*IndexInfo, error)

	// CountRowsWhere counts rows of table matching the caller-supplied SQL
	// predicate. The predicate is opaque to the prober.
	CountRowsWhere(ctx context.Context, db DBTX, table, predicate string) (int64, error)
}

// DDLGenerator renders the dialect-specific statements for patch primitives.
// Generators are pure: they never touch the database.
type DDLGenerator interface {
	// AddColumn generates the statement adding a column to a table.
	AddColumn(table string, col Column) Statement

	// AddForeignKey generates the statements adding a foreign key. The
	// current table definition is supplied because some dialects (SQLite)
	// can only add a constraint by recreating the table.
	AddForeignKey(table Table, fk ForeignKey) []Statement

	// RenameIndex generates the statements renaming an existing index.
	RenameIndex(idx IndexInfo, newName string) []Statement

	// BackfillBatch generates one bounded batch of a backfill update:
	// set column from sourceExpr on at most batchSize rows matching predicate.
	BackfillBatch(table, column, sourceExpr, predicate string, batchSize int) Statement

	// ParameterPlaceholder returns the parameter placeholder for this database
	// PostgreSQL: $1, $2, etc.
	// SQLite: ?, ?, etc.
	ParameterPlaceholder(position int) string
}

// Locker acquires and releases the advisory lock that serializes plan
// execution against a schema. The same *sql.Conn must be used for acquire
// and release.
type Locker interface {
	AcquireLock(ctx context.Context, conn *sql.Conn, key string) error
	ReleaseLock(ctx context.Context, conn *sql.Conn, key string) error
}

// Driver represents a database driver with probing, DDL generation and
// advisory locking.
type Driver interface {
	Prober
	DDLGenerator
	Locker

	// Name returns the database driver name (e.g., "postgres", "sqlite")
	Name() string

	// Dialect returns the SQL dialect this driver speaks.
	Dialect() Dialect

	// SupportsFeature checks if the database supports a specific feature
	SupportsFeature(feature string) bool
}

// Feature names understood by Driver.SupportsFeature.
const (
	// FeatureTransactionalDDL: DDL statements can run inside a transaction
	// and roll back. Engines without it force per-primitive granularity.
	FeatureTransactionalDDL = "TRANSACTIONAL_DDL"

	// FeatureAlterAddForeignKey: ALTER TABLE ... ADD CONSTRAINT is available;
	// otherwise adding a foreign key requires table recreation.
	FeatureAlterAddForeignKey = "ALTER_ADD_FOREIGN_KEY"

	// FeatureRenameIndex: the engine has a native index rename statement.
	FeatureRenameIndex = "RENAME_INDEX"

	// FeatureAdvisoryLock: the engine has session-scoped advisory locks;
	// otherwise the driver falls back to a lock table.
	FeatureAdvisoryLock = "ADVISORY_LOCK"
)
