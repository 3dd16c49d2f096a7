// Package log provides the action that writes a templated message to the engine log.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/template"
)

var ErrMissingMessage = errors.New("log action requires a message")

type Action struct {
	Message string
	Level   slog.Level
}

func NewAction(config map[string]any) (*Action, error) {
	message, _ := config["message"].(string)
	if message == "" {
		return nil, ErrMissingMessage
	}

	level, _ := config["level"].(string)

	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	if _, err := template.Parse(message); err != nil {
		return nil, err
	}

	return &Action{Message: message, Level: parsed}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) error {
	message, err := template.RenderString(a.Message, executionCtx.Values)
	if err != nil {
		return err
	}

	logger.Log(ctx, a.Level, message,
		"document_id", executionCtx.Instance.DocumentID,
		"state_id", executionCtx.State.ID)

	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
