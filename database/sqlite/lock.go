package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// lockTable holds one row per held plan lock. SQLite has no session-scoped
// advisory locks, so mutual exclusion is modeled with a primary-key insert:
// the second writer fails on the unique constraint instead of blocking.
const lockTable = "_schemapatch_lock"

// Locker implements database.Locker for SQLite via a lock table.
type Locker struct{}

// NewLocker creates a new SQLite lock-table locker
func NewLocker() *Locker {
	return &Locker{}
}

// AcquireLock takes the lock row for key, failing immediately if another run
// holds it. A crashed run leaves a stale row; clearing it is an operator
// decision, not something the engine retries around.
func (l *Locker) AcquireLock(ctx context.Context, conn *sql.Conn, key string) error {
	createSQL := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, acquired_at TEXT NOT NULL)", lockTable)
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create lock table: %w", err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (name, acquired_at) VALUES (?, datetime('now'))", lockTable)
	if _, err := conn.ExecContext(ctx, insertSQL, key); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("plan lock %q is already held by another run", key)
		}
		return fmt.Errorf("failed to acquire plan lock %q: %w", key, err)
	}
	return nil
}

// ReleaseLock deletes the lock row for key
func (l *Locker) ReleaseLock(ctx context.Context, conn *sql.Conn, key string) error {
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE name = ?", lockTable)
	if _, err := conn.ExecContext(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("failed to release plan lock %q: %w", key, err)
	}
	return nil
}
