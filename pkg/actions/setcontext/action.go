// Package setcontext provides the action that writes values into a workflow instance context.
package setcontext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/template"
	"github.com/oliveagle/jsonpath"
)

var (
	ErrMissingKey    = errors.New("set_context action requires a key")
	ErrMissingSource = errors.New("set_context action requires a path or a value")
)

type Action struct {
	Key     string
	Path    string
	Value   string
	Default any

	compiled *jsonpath.Compiled
}

func NewAction(config map[string]any) (*Action, error) {
	key, _ := config["key"].(string)
	path, _ := config["path"].(string)
	value, _ := config["value"].(string)

	if key == "" {
		return nil, ErrMissingKey
	}

	if path == "" && value == "" {
		return nil, ErrMissingSource
	}

	action := &Action{
		Key:     key,
		Path:    path,
		Value:   value,
		Default: config["default"],
	}

	if path != "" {
		compiled, err := jsonpath.Compile(path)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", path, err)
		}

		action.compiled = compiled
	}

	return action, nil
}

func (a *Action) Execute(_ context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) error {
	value, err := a.resolve(executionCtx.Values)
	if err != nil {
		return err
	}

	executionCtx.Set(a.Key, value)

	logger.Debug("Instance context updated", "key", a.Key)

	return nil
}

func (a *Action) resolve(values map[string]any) (any, error) {
	if a.compiled == nil {
		result, err := template.Render(a.Value, values)
		if err != nil {
			return nil, fmt.Errorf("failed to render value of %s: %w", a.Key, err)
		}

		return result, nil
	}

	result, err := a.compiled.Lookup(values)
	if err != nil {
		if a.Default != nil {
			return a.Default, nil
		}

		return nil, fmt.Errorf("failed to resolve %s for %s: %w", a.Path, a.Key, err)
	}

	return result, nil
}
