package models

// DefaultTransitionPermission is assigned to transitions declared without one.
const DefaultTransitionPermission = "document_states.workflow_instance_transition"

const (
	ConditionLanguageTemplate   = "template"
	ConditionLanguageJavaScript = "javascript"
)

// Condition is an expression evaluated against an instance context.
type Condition struct {
	Language   string `json:"language,omitempty" validate:"omitempty,oneof=template javascript"`
	Expression string `json:"expression"`
}

// IsEmpty reports whether the condition always holds.
func (c *Condition) IsEmpty() bool {
	return c == nil || c.Expression == ""
}

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// TransitionField declares one entry of the extra data a transition accepts.
type TransitionField struct {
	Name     string    `json:"name"               validate:"required"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"               validate:"required,oneof=string integer number boolean date"`
	Required bool      `json:"required"`
	Help     string    `json:"help,omitempty"`
	Choices  []any     `json:"choices,omitempty"`
}

// Transition is a directed edge between two states of the same template.
type Transition struct {
	ID                 string             `json:"id"`
	TemplateID         string             `json:"template_id"`
	Label              string             `json:"label"                validate:"required,max=255"`
	OriginStateID      string             `json:"origin_state_id"      validate:"required"`
	DestinationStateID string             `json:"destination_state_id" validate:"required"`
	Condition          *Condition         `json:"condition,omitempty"`
	Permission         string             `json:"permission"           validate:"required"`
	Fields             []*TransitionField `json:"fields,omitempty"     validate:"dive"`
}

// FieldSchema renders the declared fields as a JSON schema document.
func (t *Transition) FieldSchema() map[string]any {
	properties := make(map[string]any, len(t.Fields))
	required := make([]string, 0)

	for _, field := range t.Fields {
		property := map[string]any{}

		switch field.Type {
		case FieldDate:
			property["type"] = "string"
			property["format"] = "date"
		case FieldString, FieldInteger, FieldNumber, FieldBoolean:
			property["type"] = string(field.Type)
		}

		if field.Label != "" {
			property["title"] = field.Label
		}

		if field.Help != "" {
			property["description"] = field.Help
		}

		if len(field.Choices) > 0 {
			property["enum"] = field.Choices
		}

		properties[field.Name] = property

		if field.Required {
			required = append(required, field.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
