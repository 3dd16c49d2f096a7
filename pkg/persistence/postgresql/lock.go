package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/docstates/pkg/locking"
)

// AdvisoryLocker implements locking.Locker with session-level advisory locks.
// Each held lock pins one pooled connection until it is released.
type AdvisoryLocker struct {
	db *sql.DB
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (locking.Unlock, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for lock %s: %w", key, err)
	}

	_, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtextextended($1, 0))", key)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: %s: %w", locking.ErrLockNotAcquired, key, err)
	}

	return func(ctx context.Context) error {
		// the session keeps the lock if the unlock is skipped, so it must not be cancelled
		_, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock(hashtextextended($1, 0))", key)

		return errors.Join(unlockErr, conn.Close())
	}, nil
}
