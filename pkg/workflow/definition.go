// Package workflow implements the document workflow state machine: compiling templates,
// evaluating which transitions a user may take, applying them and running state actions.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/docstates/pkg/conditions"
	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ActionBinder resolves the backend of a state action.
type ActionBinder interface {
	Bind(action *models.StateAction) (protocol.Action, error)
}

// Definition is a validated template with its actions bound and its conditions and field schemas compiled.
// A Definition is immutable and safe for concurrent use.
type Definition struct {
	Template *models.WorkflowTemplate
	Hash     string

	actions              map[string]protocol.Action
	actionConditions     map[string]conditions.Predicate
	transitionConditions map[string]conditions.Predicate
	escalationConditions map[string]conditions.Predicate
	fieldSchemas         map[string]*gojsonschema.Schema
}

// Compile validates template and prepares it for execution. Every action type must be known to binder.
func Compile(template *models.WorkflowTemplate, binder ActionBinder) (*Definition, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}

	def := &Definition{
		Template:             template,
		actions:              make(map[string]protocol.Action),
		actionConditions:     make(map[string]conditions.Predicate),
		transitionConditions: make(map[string]conditions.Predicate, len(template.Transitions)),
		escalationConditions: make(map[string]conditions.Predicate),
		fieldSchemas:         make(map[string]*gojsonschema.Schema, len(template.Transitions)),
	}

	for _, state := range template.States {
		for _, action := range state.Actions {
			backend, err := binder.Bind(action)
			if err != nil {
				return nil, fmt.Errorf("state %s: %w", state.ID, err)
			}

			predicate, err := conditions.Compile(action.Condition)
			if err != nil {
				return nil, fmt.Errorf("condition of action %s: %w", action.ID, err)
			}

			def.actions[action.ID] = backend
			def.actionConditions[action.ID] = predicate
		}

		for _, escalation := range state.Escalations {
			predicate, err := conditions.Compile(escalation.Condition)
			if err != nil {
				return nil, fmt.Errorf("condition of escalation %s: %w", escalation.ID, err)
			}

			def.escalationConditions[escalation.ID] = predicate
		}
	}

	for _, transition := range template.Transitions {
		predicate, err := conditions.Compile(transition.Condition)
		if err != nil {
			return nil, fmt.Errorf("condition of transition %s: %w", transition.ID, err)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(transition.FieldSchema()))
		if err != nil {
			return nil, fmt.Errorf("fields of transition %s: %w", transition.ID, err)
		}

		def.transitionConditions[transition.ID] = predicate
		def.fieldSchemas[transition.ID] = schema
	}

	hash, err := TemplateHash(template)
	if err != nil {
		return nil, err
	}

	def.Hash = hash

	return def, nil
}

// Action returns the bound backend of a state action.
// nolint:ireturn
func (d *Definition) Action(actionID string) (protocol.Action, bool) {
	action, ok := d.actions[actionID]

	return action, ok
}

// nolint:ireturn
func (d *Definition) ActionCondition(actionID string) conditions.Predicate {
	return predicateOrAlways(d.actionConditions, actionID)
}

// nolint:ireturn
func (d *Definition) TransitionCondition(transitionID string) conditions.Predicate {
	return predicateOrAlways(d.transitionConditions, transitionID)
}

// nolint:ireturn
func (d *Definition) EscalationCondition(escalationID string) conditions.Predicate {
	return predicateOrAlways(d.escalationConditions, escalationID)
}

func predicateOrAlways(predicates map[string]conditions.Predicate, id string) conditions.Predicate {
	if predicate, ok := predicates[id]; ok {
		return predicate
	}

	return conditions.Always
}

// ValidateExtraData checks data against the fields declared by the transition.
func (d *Definition) ValidateExtraData(transitionID string, data map[string]any) error {
	schema, ok := d.fieldSchemas[transitionID]
	if !ok {
		return fmt.Errorf("%w: unknown transition %s", ErrIllegalTransition, transitionID)
	}

	if data == nil {
		data = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExtraData, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		messages = append(messages, resultErr.String())
	}

	return fmt.Errorf("%w: %w", ErrInvalidExtraData, errors.New(strings.Join(messages, "; ")))
}

// EffectiveState is the current state of the instance, or the initial state while it is unstarted.
func (d *Definition) EffectiveState(instance *models.WorkflowInstance) *models.State {
	if instance.Unstarted() {
		return d.Template.InitialState()
	}

	return d.Template.StateByID(*instance.CurrentStateID)
}
