// Package protocol defines the contracts between the workflow engine and its pluggable parts.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/docstates/pkg/models"
)

// Action is a side effect run when an instance enters or exits a state.
type Action interface {
	Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) error
}

// ActionFactory builds actions of one type from their stored configuration.
type ActionFactory interface {
	// ID is the identifier stored in StateAction.Type.
	ID() string
	Name() string
	Description() string
	// Schema returns the JSON schema of the configuration Create accepts.
	Schema() map[string]any
	Create(config map[string]any) (Action, error)
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) error

func (f ActionFunc) Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) error {
	return f(ctx, executionCtx, logger)
}
