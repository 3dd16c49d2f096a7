package file

import (
	"context"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
)

// DocumentRepository handles document files.
type DocumentRepository struct {
	store *store
}

func (r *DocumentRepository) GetByID(_ context.Context, id string) (*models.Document, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var document models.Document

	found, err := r.store.read(documentsDir, id, &document)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrDocumentNotFound
	}

	return &document, nil
}

func (r *DocumentRepository) Save(_ context.Context, document *models.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

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

	return r.store.write(documentsDir, document.ID, document)
}

func (r *DocumentRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	instances, err := loadInstances(r.store, func(instance *models.WorkflowInstance) bool {
		return instance.DocumentID == id
	})
	if err != nil {
		return err
	}

	for _, instance := range instances {
		err = r.store.remove(logEntriesDir, instance.ID)
		if err != nil {
			return err
		}

		err = r.store.remove(instancesDir, instance.ID)
		if err != nil {
			return err
		}
	}

	err = r.store.remove(errorLogsDir, id)
	if err != nil {
		return err
	}

	return r.store.remove(documentsDir, id)
}
