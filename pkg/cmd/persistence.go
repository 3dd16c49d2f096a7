package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/docstates/pkg/persistence"
	"github.com/dukex/docstates/pkg/persistence/file"
	"github.com/dukex/docstates/pkg/persistence/postgresql"
)

// NewPersistence picks the backend from the URL scheme. Anything that is not a postgres URL is a file path,
// with or without a file:// prefix.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
