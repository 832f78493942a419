package locks

import (
	"strings"

	"github.com/schemapatch/schemapatch/database"
)

// DetectLockMode analyzes a generated statement and returns the lock mode it
// will acquire on the target table.
func DetectLockMode(st database.Statement) LockMode {
	sql := strings.TrimSpace(st.SQL)
	if sql == "" {
		return LockAccessShare // No SQL = no locks
	}
	sqlUpper := strings.ToUpper(sql)

	// CREATE INDEX patterns
	if strings.HasPrefix(sqlUpper, "CREATE INDEX") || strings.HasPrefix(sqlUpper, "CREATE UNIQUE INDEX") {
		if strings.Contains(sqlUpper, "CONCURRENTLY") {
			return LockShareUpdateExclusive
		}
		return LockShare
	}

	// ALTER INDEX ... RENAME is a catalog-only change
	if strings.HasPrefix(sqlUpper, "ALTER INDEX") {
		return LockShareUpdateExclusive
	}

	// ALTER TABLE patterns
	if strings.HasPrefix(sqlUpper, "ALTER TABLE") {
		// ADD CONSTRAINT scans the whole table unless NOT VALID
		if strings.Contains(sqlUpper, "VALIDATE CONSTRAINT") {
			return LockShareUpdateExclusive
		}
		return LockAccessExclusive
	}

	// DROP TABLE, DROP INDEX, TRUNCATE
	if strings.HasPrefix(sqlUpper, "DROP TABLE") ||
		strings.HasPrefix(sqlUpper, "DROP INDEX") ||
		strings.HasPrefix(sqlUpper, "TRUNCATE") {
		return LockAccessExclusive
	}

	// CREATE TABLE - no lock on the table itself (it doesn't exist yet)
	if strings.HasPrefix(sqlUpper, "CREATE TABLE") {
		return LockAccessShare
	}

	// INSERT, UPDATE, DELETE
	if strings.HasPrefix(sqlUpper, "INSERT") ||
		strings.HasPrefix(sqlUpper, "UPDATE") ||
		strings.HasPrefix(sqlUpper, "DELETE") {
		return LockRowExclusive
	}

	// SELECT
	if strings.HasPrefix(sqlUpper, "SELECT") {
		return LockAccessShare
	}

	// Default: assume high lock for safety
	return LockAccessExclusive
}

// AnalyzeLockImpact returns detailed lock impact information for a statement
func AnalyzeLockImpact(st database.Statement) *LockImpact {
	lockMode := DetectLockMode(st)

	return &LockImpact{
		Operation:    st.Description,
		LockMode:     lockMode,
		BlocksReads:  lockMode.BlocksReads(),
		BlocksWrites: lockMode.BlocksWrites(),
		Impact:       lockMode.ImpactLevel(),
		Explanation:  explainLockMode(st, lockMode),
	}
}

// explainLockMode provides a human-readable explanation of why this lock is needed
func explainLockMode(st database.Statement, mode LockMode) string {
	sqlUpper := strings.ToUpper(strings.TrimSpace(st.SQL))
	if sqlUpper == "" {
		return "No SQL operations"
	}

	switch mode {
	case LockAccessExclusive:
		if strings.Contains(sqlUpper, "ALTER TABLE") {
			if strings.Contains(sqlUpper, "ADD COLUMN") {
				if strings.Contains(sqlUpper, "DEFAULT") {
					return "ALTER TABLE ADD COLUMN with DEFAULT may rewrite the entire table on older engines"
				}
				return "ALTER TABLE requires exclusive access to modify table structure"
			}
			if strings.Contains(sqlUpper, "ADD CONSTRAINT") {
				return "ADD CONSTRAINT scans all existing rows to validate the constraint"
			}
			if strings.Contains(sqlUpper, "RENAME TO") {
				return "Renaming a table requires exclusive access"
			}
			return "ALTER TABLE operation requires exclusive access"
		}
		if strings.Contains(sqlUpper, "DROP TABLE") {
			return "DROP TABLE requires exclusive access to remove the table"
		}
		if strings.Contains(sqlUpper, "DROP INDEX") {
			return "DROP INDEX requires exclusive access on the indexed table"
		}
		return "This operation requires exclusive table access"

	case LockShare:
		return "CREATE INDEX requires SHARE lock, blocking writes during index build"

	case LockShareUpdateExclusive:
		return "This operation allows concurrent reads and writes"

	case LockRowExclusive:
		return "Normal DML operation (INSERT/UPDATE/DELETE)"

	case LockAccessShare:
		return "Read-only operation"

	default:
		return "Standard locking for this operation type"
	}
}
