package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/docstates/pkg/models"
)

var (
	// ErrIllegalTransition indicates the transition is foreign to the template or does not leave the current state.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrPermissionDenied indicates the user lacks the transition's permission on the document.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConditionNotMet indicates the transition's condition is false or could not be evaluated.
	ErrConditionNotMet = errors.New("transition condition not met")

	// ErrInvalidExtraData indicates the extra data does not match the transition's fields.
	ErrInvalidExtraData = errors.New("invalid transition extra data")

	// ErrInvalidComment indicates the transition comment is rejected by the log entry rules.
	ErrInvalidComment = errors.New("invalid transition comment")

	// ErrActionExecution indicates a state action failed.
	ErrActionExecution = errors.New("action execution failed")

	// ErrInstanceTemplateMismatch indicates the instance runs a different template than the definition.
	ErrInstanceTemplateMismatch = errors.New("instance does not run this template")
)

// TransitionError wraps a failed transition with the instance and transition involved.
type TransitionError struct {
	Op           string
	InstanceID   string
	TransitionID string
	Err          error
}

func (e *TransitionError) Error() string {
	if e.TransitionID == "" {
		return fmt.Sprintf("%s failed for workflow instance %s: %v", e.Op, e.InstanceID, e.Err)
	}

	return fmt.Sprintf("%s failed for workflow instance %s, transition %s: %v", e.Op, e.InstanceID, e.TransitionID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func (e *TransitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newTransitionError(op, instanceID, transitionID string, err error) *TransitionError {
	return &TransitionError{Op: op, InstanceID: instanceID, TransitionID: transitionID, Err: err}
}

// ActionError reports the action that stopped a phase.
type ActionError struct {
	ActionID   string
	ActionType string
	Phase      models.ActionWhen
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action %s (%s) failed: %v", e.Phase, e.ActionID, e.ActionType, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func (e *ActionError) Is(target error) bool {
	return target == ErrActionExecution || errors.Is(e.Err, target)
}

// PanicError is returned for an action that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}

// ActionTimeoutError is returned for an action that outlived its deadline.
type ActionTimeoutError struct {
	Err error
}

func (e *ActionTimeoutError) Error() string {
	return fmt.Sprintf("action timed out: %v", e.Err)
}

func (e *ActionTimeoutError) Unwrap() error {
	return e.Err
}

func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func IsConditionNotMet(err error) bool {
	return errors.Is(err, ErrConditionNotMet)
}

func IsInvalidExtraData(err error) bool {
	return errors.Is(err, ErrInvalidExtraData)
}

func IsInvalidComment(err error) bool {
	return errors.Is(err, ErrInvalidComment)
}

func IsActionExecution(err error) bool {
	return errors.Is(err, ErrActionExecution)
}
