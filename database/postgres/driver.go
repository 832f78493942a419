package postgres

import (
	"github.com/schemapatch/schemapatch/database"
)

// Driver implements database.Driver for PostgreSQL
type Driver struct {
	*Prober
	*Generator
	*Locker
}

// NewDriver creates a new PostgreSQL driver
func NewDriver() *Driver {
	return &Driver{
		Prober:    NewProber(),
		Generator: NewGenerator(),
		Locker:    NewLocker(),
	}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "postgres"
}

// Dialect returns the SQL dialect
func (d *Driver) Dialect() database.Dialect {
	return database.DialectPostgres
}

// SupportsFeature checks if PostgreSQL supports a specific feature
func (d *Driver) SupportsFeature(feature string) bool {
	switch feature {
	case database.FeatureTransactionalDDL:
		return true
	case database.FeatureAlterAddForeignKey:
		return true
	case database.FeatureRenameIndex:
		return true
	case database.FeatureAdvisoryLock:
		return true
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
