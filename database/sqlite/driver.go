package sqlite

import (
	"github.com/schemapatch/schemapatch/database"
)

// Driver implements database.Driver for SQLite
type Driver struct {
	*Prober
	*Generator
	*Locker
}

// NewDriver creates a new SQLite driver
func NewDriver() *Driver {
	return &Driver{
		Prober:    NewProber(),
		Generator: NewGenerator(),
		Locker:    NewLocker(),
	}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "sqlite"
}

// Dialect returns the SQL dialect
func (d *Driver) Dialect() database.Dialect {
	return database.DialectSQLite
}

// SupportsFeature checks if SQLite supports a specific feature
func (d *Driver) SupportsFeature(feature string) bool {
	switch feature {
	case database.FeatureTransactionalDDL:
		return true // SQLite DDL participates in transactions
	case database.FeatureAlterAddForeignKey:
		return false // Foreign keys must be defined at table creation
	case database.FeatureRenameIndex:
		return false // No ALTER INDEX RENAME; drop and recreate
	case database.FeatureAdvisoryLock:
		return false // Lock-table fallback
	default:
		return false
	}
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)

// Ensure Prober implements database.Prober
var _ database.Prober = (*Prober)(nil)

// Ensure Generator implements database.DDLGenerator
var _ database.DDLGenerator = (*Generator)(nil)

// Ensure Locker implements database.Locker
var _ database.Locker = (*Locker)(nil)
