// Package definition loads workflow templates from YAML files.
//
// States and transitions are referenced by name inside the file. Identifiers are derived from the
// template's internal name and those names, so importing the same file twice yields the same IDs.
package definition

import (
	"errors"
	"fmt"
	"os"

	"github.com/dukex/docstates/pkg/models"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownStateName      = errors.New("unknown state name")
	ErrUnknownTransitionName = errors.New("unknown transition name")
	ErrDuplicateName         = errors.New("duplicate name")
)

type File struct {
	ID              string       `yaml:"id"`
	Label           string       `yaml:"label"`
	InternalName    string       `yaml:"internal_name"`
	AutoLaunch      bool         `yaml:"auto_launch"`
	IgnoreCompleted bool         `yaml:"ignore_completed"`
	DocumentTypes   []string     `yaml:"document_types"`
	States          []State      `yaml:"states"`
	Transitions     []Transition `yaml:"transitions"`
}

type State struct {
	Name        string       `yaml:"name"`
	Label       string       `yaml:"label"`
	Initial     bool         `yaml:"initial"`
	Final       bool         `yaml:"final"`
	Completion  int          `yaml:"completion"`
	Actions     []Action     `yaml:"actions"`
	Escalations []Escalation `yaml:"escalations"`
}

type Action struct {
	Name      string            `yaml:"name"`
	Label     string            `yaml:"label"`
	Type      string            `yaml:"type"`
	When      models.ActionWhen `yaml:"when"`
	Enabled   *bool             `yaml:"enabled"`
	Order     int               `yaml:"order"`
	Config    map[string]any    `yaml:"config"`
	Condition *Condition        `yaml:"condition"`
}

type Escalation struct {
	Transition string                `yaml:"transition"`
	Amount     int                   `yaml:"amount"`
	Unit       models.EscalationUnit `yaml:"unit"`
	Enabled    *bool                 `yaml:"enabled"`
	Priority   int                   `yaml:"priority"`
	Comment    string                `yaml:"comment"`
	Condition  *Condition            `yaml:"condition"`
}

type Transition struct {
	Name       string                    `yaml:"name"`
	Label      string                    `yaml:"label"`
	From       string                    `yaml:"from"`
	To         string                    `yaml:"to"`
	Permission string                    `yaml:"permission"`
	Condition  *Condition                `yaml:"condition"`
	Fields     []*models.TransitionField `yaml:"fields"`
}

// Condition accepts either a bare expression string or a mapping with language and expression.
type Condition struct {
	Language   string `yaml:"language"`
	Expression string `yaml:"expression"`
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Expression = node.Value

		return nil
	}

	type plain Condition

	return node.Decode((*plain)(c))
}

func (c *Condition) model() *models.Condition {
	if c == nil || c.Expression == "" {
		return nil
	}

	return &models.Condition{Language: c.Language, Expression: c.Expression}
}

func Load(path string) (*models.WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template definition: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML definition and validates the resulting template.
func Parse(data []byte) (*models.WorkflowTemplate, error) {
	var file File

	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template definition: %w", err)
	}

	template, err := file.Template()
	if err != nil {
		return nil, err
	}

	if err := template.Validate(); err != nil {
		return nil, err
	}

	return template, nil
}

// Template converts the file into a template, resolving names to identifiers.
func (f *File) Template() (*models.WorkflowTemplate, error) {
	templateID := f.ID
	if templateID == "" {
		templateID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docstates:template:"+f.InternalName)).String()
	}

	namespace, err := uuid.Parse(templateID)
	if err != nil {
		namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(templateID))
	}

	id := func(kind, name string) string {
		return uuid.NewSHA1(namespace, []byte(kind+":"+name)).String()
	}

	template := &models.WorkflowTemplate{
		ID:              templateID,
		Label:           f.Label,
		InternalName:    f.InternalName,
		AutoLaunch:      f.AutoLaunch,
		IgnoreCompleted: f.IgnoreCompleted,
		DocumentTypeIDs: f.DocumentTypes,
		States:          make([]*models.State, 0, len(f.States)),
		Transitions:     make([]*models.Transition, 0, len(f.Transitions)),
	}

	stateIDs := make(map[string]string, len(f.States))
	for _, state := range f.States {
		if _, exists := stateIDs[state.Name]; exists {
			return nil, fmt.Errorf("state %q: %w", state.Name, ErrDuplicateName)
		}

		stateIDs[state.Name] = id("state", state.Name)
	}

	transitionIDs := make(map[string]string, len(f.Transitions))
	for _, transition := range f.Transitions {
		if _, exists := transitionIDs[transition.Name]; exists {
			return nil, fmt.Errorf("transition %q: %w", transition.Name, ErrDuplicateName)
		}

		transitionIDs[transition.Name] = id("transition", transition.Name)
	}

	for _, state := range f.States {
		converted := &models.State{
			ID:         stateIDs[state.Name],
			TemplateID: templateID,
			Label:      labelOr(state.Label, state.Name),
			Initial:    state.Initial,
			Final:      state.Final,
			Completion: state.Completion,
		}

		for i, action := range state.Actions {
			name := action.Name
			if name == "" {
				name = fmt.Sprintf("%d", i)
			}

			converted.Actions = append(converted.Actions, &models.StateAction{
				ID:        id("action", state.Name+"/"+name),
				Label:     labelOr(action.Label, action.Type),
				Type:      action.Type,
				Config:    action.Config,
				When:      action.When,
				Enabled:   enabled(action.Enabled),
				Order:     action.Order,
				Condition: action.Condition.model(),
			})
		}

		for i, escalation := range state.Escalations {
			transitionID, ok := transitionIDs[escalation.Transition]
			if !ok {
				return nil, fmt.Errorf("escalation of state %q to %q: %w", state.Name, escalation.Transition, ErrUnknownTransitionName)
			}

			converted.Escalations = append(converted.Escalations, &models.Escalation{
				ID:           id("escalation", fmt.Sprintf("%s/%d", state.Name, i)),
				TransitionID: transitionID,
				Amount:       escalation.Amount,
				Unit:         escalation.Unit,
				Enabled:      enabled(escalation.Enabled),
				Priority:     escalation.Priority,
				Comment:      escalation.Comment,
				Condition:    escalation.Condition.model(),
			})
		}

		template.States = append(template.States, converted)
	}

	for _, transition := range f.Transitions {
		origin, ok := stateIDs[transition.From]
		if !ok {
			return nil, fmt.Errorf("transition %q from %q: %w", transition.Name, transition.From, ErrUnknownStateName)
		}

		destination, ok := stateIDs[transition.To]
		if !ok {
			return nil, fmt.Errorf("transition %q to %q: %w", transition.Name, transition.To, ErrUnknownStateName)
		}

		permission := transition.Permission
		if permission == "" {
			permission = models.DefaultTransitionPermission
		}

		template.Transitions = append(template.Transitions, &models.Transition{
			ID:                 transitionIDs[transition.Name],
			TemplateID:         templateID,
			Label:              labelOr(transition.Label, transition.Name),
			OriginStateID:      origin,
			DestinationStateID: destination,
			Condition:          transition.Condition.model(),
			Permission:         permission,
			Fields:             transition.Fields,
		})
	}

	return template, nil
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}

	return fallback
}

func enabled(value *bool) bool {
	return value == nil || *value
}
