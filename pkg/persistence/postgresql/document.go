package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
)

// DocumentRepository handles document database operations.
type DocumentRepository struct {
	db *sql.DB
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var document models.Document

	err := r.db.QueryRowContext(ctx, `
		SELECT id, label, document_type_id, created_at FROM documents WHERE id = $1
	`, id).Scan(&document.ID, &document.Label, &document.DocumentTypeID, &document.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDocumentNotFound
		}

		return nil, fmt.Errorf("failed to fetch document %s: %w", id, err)
	}

	return &document, nil
}

func (r *DocumentRepository) Save(ctx context.Context, document *models.Document) error {
	if document.ID == "" {
		id, err := persistence.NewID()
		if err != nil {
			return err
		}

		document.ID = id
	}

	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, label, document_type_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			document_type_id = EXCLUDED.document_type_id
	`, document.ID, document.Label, document.DocumentTypeID, document.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", document.ID, err)
	}

	return nil
}

// Delete relies on ON DELETE CASCADE for instances, their logs and error notes.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	return nil
}
