package workflow

import (
	"fmt"
	"strings"

	"github.com/dukex/docstates/pkg/models"
)

// Diagram renders the template as a Graphviz DOT digraph.
// Edge states are drawn as double circles, actions as boxes and escalations as dashed edges.
func Diagram(template *models.WorkflowTemplate) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("digraph %s {\n", quote(template.Label)))
	sb.WriteString("    rankdir=LR;\n")
	sb.WriteString("    node [fontname=\"Helvetica\"];\n")

	for _, state := range template.States {
		shape := "circle"
		if template.IsEdgeState(state) {
			shape = "doublecircle"
		}

		attrs := []string{
			"label=" + quote(stateLabel(state)),
			"shape=" + shape,
		}

		switch {
		case state.Final:
			attrs = append(attrs, "style=filled", "fillcolor=\"#dff0d8\"", "fontcolor=\"#3c763d\"")
		case state.Initial:
			attrs = append(attrs, "style=filled", "fillcolor=\"#d9edf7\"")
		}

		sb.WriteString(fmt.Sprintf("    %s [%s];\n", quote("state_"+state.ID), strings.Join(attrs, ", ")))

		for _, action := range state.Actions {
			actionNode := quote("action_" + action.ID)

			style := "solid"
			if !action.Enabled {
				style = "dotted"
			}

			sb.WriteString(fmt.Sprintf("    %s [label=%s, shape=box, style=%s];\n",
				actionNode, quote(fmt.Sprintf("%s\n(%s)", action.Label, action.When)), style))
			sb.WriteString(fmt.Sprintf("    %s -> %s [arrowhead=none, style=dotted];\n",
				quote("state_"+state.ID), actionNode))
		}
	}

	for _, transition := range template.Transitions {
		sb.WriteString(fmt.Sprintf("    %s -> %s [label=%s];\n",
			quote("state_"+transition.OriginStateID),
			quote("state_"+transition.DestinationStateID),
			quote(transition.Label)))
	}

	for _, state := range template.States {
		for _, escalation := range state.Escalations {
			transition := template.TransitionByID(escalation.TransitionID)
			if transition == nil {
				continue
			}

			label := fmt.Sprintf("%s after %d %s", transition.Label, escalation.Amount, escalation.Unit)
			sb.WriteString(fmt.Sprintf("    %s -> %s [label=%s, style=dashed];\n",
				quote("state_"+state.ID),
				quote("state_"+transition.DestinationStateID),
				quote(label)))
		}
	}

	sb.WriteString("}\n")

	return sb.String()
}

func stateLabel(state *models.State) string {
	if state.Completion > 0 {
		return fmt.Sprintf("%s\n%d%%", state.Label, state.Completion)
	}

	return state.Label
}

func quote(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

	return `"` + replacer.Replace(value) + `"`
}
