package setcontext

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/docstates/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executionContext() *models.ExecutionContext {
	instance := &models.WorkflowInstance{ID: "i1", DocumentID: "doc-1", Context: map[string]any{"attempts": 2}}

	return &models.ExecutionContext{
		Instance: instance,
		Values: map[string]any{
			"log_entry": map[string]any{
				"user_id":    "alice",
				"extra_data": map[string]any{"reason": "typos"},
			},
			"workflow_instance_context": map[string]any{"attempts": 2},
		},
	}
}

func TestNewAction_Validation(t *testing.T) {
	_, err := NewAction(map[string]any{"path": "$.x"})
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = NewAction(map[string]any{"key": "x"})
	require.ErrorIs(t, err, ErrMissingSource)

	_, err = NewAction(map[string]any{"key": "x", "path": "no-dollar"})
	require.Error(t, err)
}

func TestAction_ExecutePath(t *testing.T) {
	action, err := NewAction(map[string]any{"key": "reason", "path": "$.log_entry.extra_data.reason"})
	require.NoError(t, err)

	execCtx := executionContext()
	require.NoError(t, action.Execute(context.Background(), execCtx, slog.Default()))

	assert.Equal(t, "typos", execCtx.Instance.Context["reason"])
	assert.Equal(t, "typos", execCtx.Values["workflow_instance_context"].(map[string]any)["reason"])
}

func TestAction_ExecutePathDefault(t *testing.T) {
	action, err := NewAction(map[string]any{"key": "priority", "path": "$.log_entry.extra_data.priority", "default": "normal"})
	require.NoError(t, err)

	execCtx := executionContext()
	require.NoError(t, action.Execute(context.Background(), execCtx, slog.Default()))
	assert.Equal(t, "normal", execCtx.Instance.Context["priority"])

	action.Default = nil
	require.Error(t, action.Execute(context.Background(), executionContext(), slog.Default()))
}

func TestAction_ExecuteTemplate(t *testing.T) {
	action, err := NewAction(map[string]any{"key": "last_user", "value": "{{.log_entry.user_id}}"})
	require.NoError(t, err)

	execCtx := executionContext()
	require.NoError(t, action.Execute(context.Background(), execCtx, slog.Default()))
	assert.Equal(t, "alice", execCtx.Instance.Context["last_user"])
	assert.Equal(t, 2, execCtx.Instance.Context["attempts"])
}

func TestActionFactory(t *testing.T) {
	factory := NewActionFactory()

	assert.Equal(t, "set_context", factory.ID())
	assert.Equal(t, []string{"key"}, factory.Schema()["required"])

	action, err := factory.Create(map[string]any{"key": "k", "value": "v"})
	require.NoError(t, err)
	assert.IsType(t, &Action{}, action)
}
