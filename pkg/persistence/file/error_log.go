package file

import (
	"context"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
)

// ErrorLogRepository keeps one file of error notes per document.
type ErrorLogRepository struct {
	store *store
}

func (r *ErrorLogRepository) Create(_ context.Context, documentID, domain, text string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var entries []*models.ErrorLogEntry

	_, err := r.store.read(errorLogsDir, documentID, &entries)
	if err != nil {
		return err
	}

	id, err := persistence.NewID()
	if err != nil {
		return err
	}

	entries = append(entries, &models.ErrorLogEntry{
		ID:         id,
		DocumentID: documentID,
		Domain:     domain,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	})

	return r.store.write(errorLogsDir, documentID, entries)
}

func (r *ErrorLogRepository) Clear(_ context.Context, documentID, domain string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var entries []*models.ErrorLogEntry

	found, err := r.store.read(errorLogsDir, documentID, &entries)
	if err != nil || !found {
		return err
	}

	kept := make([]*models.ErrorLogEntry, 0, len(entries))

	for _, entry := range entries {
		if entry.Domain != domain {
			kept = append(kept, entry)
		}
	}

	if len(kept) == len(entries) {
		return nil
	}

	return r.store.write(errorLogsDir, documentID, kept)
}

func (r *ErrorLogRepository) GetByDocument(_ context.Context, documentID string) ([]*models.ErrorLogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entries := make([]*models.ErrorLogEntry, 0)

	_, err := r.store.read(errorLogsDir, documentID, &entries)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
