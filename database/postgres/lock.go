package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// Locker implements database.Locker using PostgreSQL session-scoped advisory
// locks. The lock key is derived from the plan name, so two runs of the same
// plan (or two plans sharing a lock key) serialize against each other.
type Locker struct{}

// NewLocker creates a new PostgreSQL advisory locker
func NewLocker() *Locker {
	return &Locker{}
}

// AcquireLock blocks until the advisory lock for key is held by conn.
// Advisory locks are session-scoped, so release must use the same conn.
func (l *Locker) AcquireLock(ctx context.Context, conn *sql.Conn, key string) error {
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockKey(key)); err != nil {
		return fmt.Errorf("failed to acquire advisory lock %q: %w", key, err)
	}
	return nil
}

// ReleaseLock releases the advisory lock for key held by conn
func (l *Locker) ReleaseLock(ctx context.Context, conn *sql.Conn, key string) error {
	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", lockKey(key)).Scan(&released); err != nil {
		return fmt.Errorf("failed to release advisory lock %q: %w", key, err)
	}
	if !released {
		return fmt.Errorf("advisory lock %q was not held by this session", key)
	}
	return nil
}

// lockKey maps an arbitrary string key onto the bigint space
// pg_advisory_lock expects.
func lockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("schemapatch:" + key))
	return int64(h.Sum64())
}
