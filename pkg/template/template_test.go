package template

import (
	"testing"

	"github.com/dukex/docstates/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// numbers always come back as float64
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)
}

func TestRender_ComplexExpression(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{"name": "Alice"},
		"orders": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2},
		},
	}

	result, err := Render(`{"user_name": "{{ .user.name }}", "total_orders": {{ len .orders }}}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.Equal(t, 2.0, resultMap["total_orders"])
}

func TestRender_ErrorHandling(t *testing.T) {
	_, err := Render("{{ .name ", map[string]any{})
	require.Error(t, err)

	_, err = Render(`{"broken": {{ .value }`, map[string]any{"value": 1})
	require.Error(t, err)
}

func TestRender_MissingKey(t *testing.T) {
	result, err := RenderString("value={{ .missing }}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "value=<no value>", result)
}

func TestRender_JSONFunc(t *testing.T) {
	result, err := RenderString(`{{ json .tags }}`, map[string]any{"tags": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, result)
}

func TestRenderWithContext(t *testing.T) {
	executionCtx := &models.ExecutionContext{
		Values: map[string]any{
			"document": map[string]any{"label": "Invoice 42"},
			"workflow_instance_context": map[string]any{
				"amount": 1200,
			},
		},
	}

	result, err := RenderWithContext("{{ .document.label }}", executionCtx)
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42", result)

	result, err = RenderWithContext("{{ gt .workflow_instance_context.amount 1000 }}", executionCtx)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}
