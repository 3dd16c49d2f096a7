package workflow_test

import (
	"testing"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagram(t *testing.T) {
	template := reviewTemplate()
	template.States[1].Escalations = []*models.Escalation{
		{ID: "esc", TransitionID: "reject", Amount: 3, Unit: models.UnitDays, Enabled: true},
	}

	dot := workflow.Diagram(template)

	assert.Contains(t, dot, `digraph "Review" {`)
	assert.Contains(t, dot, `"state_draft" [label="Draft", shape=doublecircle, style=filled, fillcolor="#d9edf7"];`)
	assert.Contains(t, dot, `"state_review" [label="Review\n50%", shape=circle];`)
	assert.Contains(t, dot, `"action_notify" [label="Notify\n(on_entry)", shape=box, style=solid];`)
	assert.Contains(t, dot, `"state_draft" -> "state_review" [label="Submit"];`)
	assert.Contains(t, dot, `"state_review" -> "state_draft" [label="Reject after 3 days", style=dashed];`)
}

func TestDiagram_FinalStyleWins(t *testing.T) {
	template := &models.WorkflowTemplate{
		Label: "Single",
		States: []*models.State{
			{ID: "only", Label: "Only", Initial: true, Final: true},
		},
	}

	dot := workflow.Diagram(template)

	assert.Contains(t, dot, `"state_only" [label="Only", shape=doublecircle, style=filled, fillcolor="#dff0d8", fontcolor="#3c763d"];`)
	assert.NotContains(t, dot, "#d9edf7")
}

func TestStateHash(t *testing.T) {
	template := reviewTemplate()

	first, err := workflow.StateHash(template.States[1])
	require.NoError(t, err)

	again, err := workflow.StateHash(template.States[1])
	require.NoError(t, err)
	assert.Equal(t, first, again)

	template.States[1].Actions[0].Config = map[string]any{"to": "team"}

	changed, err := workflow.StateHash(template.States[1])
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	template.States[1].Escalations = []*models.Escalation{{ID: "e", TransitionID: "reject", Amount: 1, Unit: models.UnitHours}}

	escalated, err := workflow.StateHash(template.States[1])
	require.NoError(t, err)
	assert.NotEqual(t, changed, escalated)
}

func TestTemplateHash(t *testing.T) {
	first, err := workflow.TemplateHash(reviewTemplate())
	require.NoError(t, err)

	template := reviewTemplate()
	template.Transitions[0].Permission = "documents.submit"

	second, err := workflow.TemplateHash(template)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
