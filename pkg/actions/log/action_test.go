package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/dukex/docstates/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionFactory(t *testing.T) {
	factory := NewActionFactory()

	assert.Equal(t, "log", factory.ID())
	assert.Equal(t, "Log", factory.Name())
	assert.NotEmpty(t, factory.Description())
	assert.Equal(t, []string{"message"}, factory.Schema()["required"])
}

func TestNewAction(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantLevel slog.Level
		wantErr   bool
	}{
		{name: "defaults to info", config: map[string]any{"message": "hi"}, wantLevel: slog.LevelInfo},
		{name: "warning alias", config: map[string]any{"message": "hi", "level": "warning"}, wantLevel: slog.LevelWarn},
		{name: "missing message", config: map[string]any{}, wantErr: true},
		{name: "unknown level", config: map[string]any{"message": "hi", "level": "loud"}, wantErr: true},
		{name: "broken template", config: map[string]any{"message": "{{ .x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := NewActionFactory().Create(tt.config)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, action.(*Action).Level)
		})
	}
}

func TestAction_Execute(t *testing.T) {
	var buf bytes.Buffer

	// the executor scopes the logger to the action
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("action_type", "log")

	action, err := NewAction(map[string]any{
		"message": "{{.document.label}} reviewed by {{.log_entry.user_id}}",
		"level":   "warn",
	})
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{
		Instance: &models.WorkflowInstance{ID: "i1", DocumentID: "doc-1"},
		State:    &models.State{ID: "review"},
		Values: map[string]any{
			"document":  map[string]any{"label": "Invoice 7"},
			"log_entry": map[string]any{"user_id": "alice"},
		},
	}

	require.NoError(t, action.Execute(context.Background(), execCtx, logger))

	output := buf.String()
	assert.Contains(t, output, "level=WARN")
	assert.Contains(t, output, `msg="Invoice 7 reviewed by alice"`)
	assert.Contains(t, output, "document_id=doc-1")
	assert.Equal(t, 1, strings.Count(output, "action_type="))
}
