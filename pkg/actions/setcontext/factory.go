package setcontext

import (
	"github.com/dukex/docstates/pkg/protocol"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// nolint:ireturn
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) ID() string {
	return "set_context"
}

func (f *ActionFactory) Name() string {
	return "Set context"
}

func (f *ActionFactory) Description() string {
	return "Stores a value in the workflow instance context. The value is either a JSONPath lookup or a rendered template."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{
				"type":        "string",
				"description": "Context key to write.",
				"examples":    []string{"approved_by", "review_reason"},
			},
			"path": map[string]any{
				"type":        "string",
				"description": "JSONPath expression evaluated against the action context.",
				"examples": []string{
					"$.log_entry.user_id",
					"$.log_entry.extra_data.reason",
					"$.workflow_instance.current_state.label",
				},
			},
			"value": map[string]any{
				"type":        "string",
				"description": "Template rendered against the action context. Used when no path is given.",
				"examples": []string{
					"{{now}}",
					"{{.workflow_instance_context.attempts}}",
				},
			},
			"default": map[string]any{
				"description": "Value stored when the path does not resolve.",
			},
		},
		"required": []string{"key"},
		"oneOf": []any{
			map[string]any{"required": []string{"path"}},
			map[string]any{"required": []string{"value"}},
		},
	}
}
