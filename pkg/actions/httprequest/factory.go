package httprequest

import (
	"github.com/dukex/docstates/pkg/protocol"
)

// ActionFactory creates HTTP request actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// nolint:ireturn
func (h *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (h *ActionFactory) ID() string {
	return "http_request"
}

func (h *ActionFactory) Name() string {
	return "HTTP Request"
}

func (h *ActionFactory) Description() string {
	return "Calls an HTTP endpoint, for example a webhook announcing that a document reached a state."
}

func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to call. Supports templating over the instance context.",
				"examples": []string{
					"https://hooks.example.com/documents/{{.document.id}}",
				},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers. Values support templating.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. Supports templating.",
				"examples": []string{
					`{"document": "{{.document.id}}", "state": "{{.workflow_instance.current_state.label}}"}`,
				},
			},
			"timeout_seconds": map[string]any{
				"type":    "number",
				"default": 30, //nolint:mnd // example value
			},
			"store_response_as": map[string]any{
				"type":        "string",
				"description": "Instance context key receiving the status code and decoded body.",
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":    "integer",
						"default": 1,
						"minimum": 1,
						"maximum": 5, //nolint:mnd // example value
					},
					"delay": map[string]any{
						"type":        "integer",
						"description": "Delay between attempts in milliseconds",
						"default":     1000, //nolint:mnd // example value
					},
				},
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
