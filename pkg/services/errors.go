// Package services exposes the workflow engine to hosts: template management, launching
// workflows on documents, transitions, queries and escalations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/docstates/pkg/persistence"
	"github.com/dukex/docstates/pkg/workflow"
)

var (
	ErrInvalidTemplate    = errors.New("invalid workflow template")
	ErrStateNotFound      = errors.New("state not found in workflow template")
	ErrTransitionNotFound = errors.New("transition not found in workflow template")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Machine readable error code
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError reports errors caused by the request itself.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTemplate) ||
		errors.Is(err, ErrStateNotFound) ||
		errors.Is(err, ErrTransitionNotFound) ||
		workflow.IsInvalidExtraData(err) ||
		workflow.IsInvalidComment(err)
}

// IsConflictError reports errors caused by the current state of the data.
func IsConflictError(err error) bool {
	return errors.Is(err, persistence.ErrInstanceAlreadyExists) ||
		errors.Is(err, persistence.ErrTemplateInUse) ||
		persistence.IsConcurrentModification(err) ||
		workflow.IsIllegalTransition(err) ||
		workflow.IsConditionNotMet(err)
}
