// Package persistence provides the data storage abstraction of the workflow engine.
package persistence

import (
	"context"
	"fmt"

	"github.com/dukex/docstates/pkg/models"
	"github.com/google/uuid"
)

type Persistence interface {
	TemplateRepository() TemplateRepository
	DocumentRepository() DocumentRepository
	InstanceRepository() InstanceRepository
	ErrorLogRepository() ErrorLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type TemplateRepository interface {
	GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	// Save fails with ErrTemplateInUse when it would drop a state that instances sit in
	// or a transition recorded in their logs.
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	// Delete fails with ErrTemplateInUse while instances reference the template.
	Delete(ctx context.Context, id string) error
}

type DocumentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	Save(ctx context.Context, document *models.Document) error
	// Delete removes the document with its instances, log entries and error notes.
	Delete(ctx context.Context, id string) error
}

type InstanceRepository interface {
	// Create fails with ErrInstanceAlreadyExists when the document already runs the template.
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	GetByDocument(ctx context.Context, documentID string) ([]*models.WorkflowInstance, error)
	GetByState(ctx context.Context, templateID, stateID string) ([]*models.WorkflowInstance, error)

	// Update stores the state pointer and context if the stored version matches instance.Version,
	// then increments it. It fails with ErrConcurrentModification otherwise.
	Update(ctx context.Context, instance *models.WorkflowInstance) error

	// CommitTransition appends entry and updates the instance as one atomic step,
	// with the same version check as Update.
	CommitTransition(ctx context.Context, instance *models.WorkflowInstance, entry *models.LogEntry) error

	// LogEntries returns the instance's log ordered by datetime then sequence.
	LogEntries(ctx context.Context, instanceID string) ([]*models.LogEntry, error)
	// LastLogEntry returns nil when the instance has no log.
	LastLogEntry(ctx context.Context, instanceID string) (*models.LogEntry, error)
}

type ErrorLogRepository interface {
	Create(ctx context.Context, documentID, domain, text string) error
	Clear(ctx context.Context, documentID, domain string) error
	GetByDocument(ctx context.Context, documentID string) ([]*models.ErrorLogEntry, error)
}

// NewID returns a time-ordered identifier for a new record.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}

	return id.String(), nil
}

// CheckGraphInUse fails with ErrTemplateInUse when template lacks one of the states or
// transitions still referenced by its instances.
func CheckGraphInUse(template *models.WorkflowTemplate, stateIDs, transitionIDs []string) error {
	for _, id := range stateIDs {
		if template.StateByID(id) == nil {
			return NewTemplateError("Save", template.ID,
				fmt.Errorf("%w: instances are in state %s", ErrTemplateInUse, id))
		}
	}

	for _, id := range transitionIDs {
		if template.TransitionByID(id) == nil {
			return NewTemplateError("Save", template.ID,
				fmt.Errorf("%w: instance logs reference transition %s", ErrTemplateInUse, id))
		}
	}

	return nil
}
