// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a workflow template was not found by the given identifier.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrTemplateInUse indicates a template cannot be deleted, or lose states and transitions,
	// while instances reference it.
	ErrTemplateInUse = errors.New("workflow template has instances")

	// ErrDocumentNotFound indicates a document was not found by the given identifier.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInstanceNotFound indicates a workflow instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrInstanceAlreadyExists indicates the document already runs the template.
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists for document")

	// ErrConcurrentModification indicates the instance changed since it was read.
	ErrConcurrentModification = errors.New("workflow instance was modified concurrently")
)

// TemplateError wraps template-related errors with additional context.
type TemplateError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	TemplateID string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{Op: op, TemplateID: templateID, Err: err}
}

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string
	InstanceID string
	DocumentID string
	Err        error
}

func (e *InstanceError) Error() string {
	target := e.InstanceID
	if target == "" {
		target = fmt.Sprintf("document %s", e.DocumentID)
	}

	return fmt.Sprintf("%s operation failed for workflow instance %s: %v", e.Op, target, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

func NewDocumentInstanceError(op, documentID string, err error) *InstanceError {
	return &InstanceError{Op: op, DocumentID: documentID, Err: err}
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsDocumentNotFound checks if an error indicates a document was not found.
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsConcurrentModification checks if an error indicates a lost optimistic update.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
