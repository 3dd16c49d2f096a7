package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
)

// ErrorLogRepository handles the error notes attached to documents.
type ErrorLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ErrorLogRepository) Create(ctx context.Context, documentID, domain, text string) error {
	id, err := persistence.NewID()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO error_log_entries (id, document_id, domain, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, documentID, domain, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create error log entry for document %s: %w", documentID, err)
	}

	return nil
}

func (r *ErrorLogRepository) Clear(ctx context.Context, documentID, domain string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM error_log_entries WHERE document_id = $1 AND domain = $2",
		documentID, domain)
	if err != nil {
		return fmt.Errorf("failed to clear error log of document %s: %w", documentID, err)
	}

	return nil
}

func (r *ErrorLogRepository) GetByDocument(ctx context.Context, documentID string) ([]*models.ErrorLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, domain, text, created_at
		FROM error_log_entries
		WHERE document_id = $1
		ORDER BY created_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query error log of document %s: %w", documentID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.ErrorLogEntry, 0)

	for rows.Next() {
		var entry models.ErrorLogEntry

		err = rows.Scan(&entry.ID, &entry.DocumentID, &entry.Domain, &entry.Text, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error log entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating error log entries: %w", err)
	}

	return entries, nil
}
