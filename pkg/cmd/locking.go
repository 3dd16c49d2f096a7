package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/docstates/pkg/locking"
	"github.com/dukex/docstates/pkg/persistence"
	"github.com/dukex/docstates/pkg/persistence/postgresql"
)

var ErrAdvisoryLockUnavailable = errors.New("postgres advisory locks need postgres persistence")

// NewLocker returns the instance lock named by lockURL: "" or "local" for an in-process lock,
// a redis:// URL for a Redis lock, or "postgres" for advisory locks on the persistence database.
func NewLocker(ctx context.Context, logger *slog.Logger, lockURL string, p persistence.Persistence) (locking.Locker, error) {
	switch parsePersistenceProvider(lockURL) {
	case "redis", "rediss":
		return locking.NewRedisFromURL(ctx, lockURL, logger)
	}

	switch lockURL {
	case "", "local":
		return locking.NewLocal(), nil
	case "postgres", "postgresql":
		pg, ok := p.(*postgresql.Persistence)
		if !ok {
			return nil, ErrAdvisoryLockUnavailable
		}

		return pg.Locker(), nil
	default:
		return nil, fmt.Errorf("unsupported lock provider: %s", lockURL)
	}
}
