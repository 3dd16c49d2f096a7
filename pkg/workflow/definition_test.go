package workflow_test

import (
	"testing"

	"github.com/dukex/docstates/pkg/conditions"
	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	def, err := workflow.Compile(reviewTemplate(), recordingActions(&recorder{}))
	require.NoError(t, err)

	_, ok := def.Action("notify")
	assert.True(t, ok)
	assert.Equal(t, conditions.Always, def.TransitionCondition("submit"))
	assert.NotEqual(t, conditions.Always, def.TransitionCondition("approve"))
	assert.Len(t, def.Hash, 64)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.WorkflowTemplate)
		wantErr error
	}{
		{
			name:    "invalid graph",
			mutate:  func(tpl *models.WorkflowTemplate) { tpl.States[0].Initial = false },
			wantErr: models.ErrNoInitialState,
		},
		{
			name: "unknown condition language",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Transitions[0].Condition = &models.Condition{Language: "lua", Expression: "true"}
			},
		},
		{
			name: "javascript syntax error",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.States[1].Actions[0].Condition = &models.Condition{
					Language:   models.ConditionLanguageJavaScript,
					Expression: "((",
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template := reviewTemplate()
			tt.mutate(template)

			_, err := workflow.Compile(template, recordingActions(&recorder{}))
			require.Error(t, err)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	t.Run("unknown action type", func(t *testing.T) {
		template := reviewTemplate()
		template.States[1].Actions[0].Type = "fax"

		_, err := workflow.Compile(template, recordingActions(&recorder{}))
		require.ErrorContains(t, err, "unknown action type fax")
	})
}

func TestDefinition_ValidateExtraData(t *testing.T) {
	template := reviewTemplate()
	template.Transitions[2].Fields = append(template.Transitions[2].Fields,
		&models.TransitionField{Name: "due", Type: models.FieldDate},
		&models.TransitionField{Name: "severity", Type: models.FieldString, Choices: []any{"low", "high"}},
	)

	def, err := workflow.Compile(template, recordingActions(&recorder{}))
	require.NoError(t, err)

	tests := []struct {
		name  string
		data  map[string]any
		valid bool
	}{
		{name: "required present", data: map[string]any{"reason": "typo"}, valid: true},
		{name: "required missing", data: nil, valid: false},
		{name: "wrong type", data: map[string]any{"reason": true}, valid: false},
		{name: "valid date", data: map[string]any{"reason": "x", "due": "2024-05-01"}, valid: true},
		{name: "invalid date", data: map[string]any{"reason": "x", "due": "tomorrow"}, valid: false},
		{name: "choice", data: map[string]any{"reason": "x", "severity": "high"}, valid: true},
		{name: "not a choice", data: map[string]any{"reason": "x", "severity": "urgent"}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := def.ValidateExtraData("reject", tt.data)
			if tt.valid {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, workflow.ErrInvalidExtraData)
		})
	}

	require.NoError(t, def.ValidateExtraData("submit", map[string]any{"anything": 1}))
	require.ErrorIs(t, def.ValidateExtraData("teleport", nil), workflow.ErrIllegalTransition)
}

func TestDefinition_EffectiveState(t *testing.T) {
	def, err := workflow.Compile(reviewTemplate(), recordingActions(&recorder{}))
	require.NoError(t, err)

	instance := &models.WorkflowInstance{}
	assert.Equal(t, "draft", def.EffectiveState(instance).ID)

	instance.SetCurrentState("review", instance.CreatedAt)
	assert.Equal(t, "review", def.EffectiveState(instance).ID)
}
