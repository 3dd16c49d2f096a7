package log

import (
	"github.com/dukex/docstates/pkg/protocol"
)

// ActionFactory creates log actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "log"
}

func (*ActionFactory) Name() string {
	return "Log"
}

func (*ActionFactory) Description() string {
	return "Writes a message to the engine log when a document enters or leaves a state. The message is a template over the instance context."
}

// nolint:ireturn
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating over the instance context.",
				"examples": []string{
					"{{.document.label}} entered {{.workflow_instance.current_state.label}}",
					"Transition by {{.log_entry.user_id}}: {{.log_entry.comment}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}
