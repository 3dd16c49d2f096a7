// Package models provides the entities of the document workflow engine.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNoInitialState        = errors.New("workflow template has no initial state")
	ErrMultipleInitialStates = errors.New("workflow template has more than one initial state")
	ErrUnknownState          = errors.New("transition references a state outside the template")
	ErrDuplicateID           = errors.New("duplicate identifier in workflow template")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// WorkflowTemplate is a user-defined workflow: a set of states connected by transitions.
type WorkflowTemplate struct {
	ID              string        `json:"id"`
	Label           string        `json:"label"                        validate:"required,max=255"`
	InternalName    string        `json:"internal_name"                validate:"required,max=255"`
	AutoLaunch      bool          `json:"auto_launch"`
	IgnoreCompleted bool          `json:"ignore_completed"`
	DocumentTypeIDs []string      `json:"document_type_ids,omitempty"`
	States          []*State      `json:"states"                       validate:"required,min=1,dive"`
	Transitions     []*Transition `json:"transitions"                  validate:"dive"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Validate checks field constraints and the structural rules of the state graph.
func (t *WorkflowTemplate) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid workflow template: %w", err)
	}

	initial := 0
	states := make(map[string]struct{}, len(t.States))

	for _, state := range t.States {
		if _, exists := states[state.ID]; exists {
			return fmt.Errorf("state %s: %w", state.ID, ErrDuplicateID)
		}

		states[state.ID] = struct{}{}

		if state.Initial {
			initial++
		}
	}

	switch {
	case initial == 0:
		return ErrNoInitialState
	case initial > 1:
		return ErrMultipleInitialStates
	}

	transitions := make(map[string]struct{}, len(t.Transitions))

	for _, transition := range t.Transitions {
		if _, exists := transitions[transition.ID]; exists {
			return fmt.Errorf("transition %s: %w", transition.ID, ErrDuplicateID)
		}

		transitions[transition.ID] = struct{}{}

		if _, ok := states[transition.OriginStateID]; !ok {
			return fmt.Errorf("transition %s origin %s: %w", transition.ID, transition.OriginStateID, ErrUnknownState)
		}

		if _, ok := states[transition.DestinationStateID]; !ok {
			return fmt.Errorf("transition %s destination %s: %w", transition.ID, transition.DestinationStateID, ErrUnknownState)
		}
	}

	for _, state := range t.States {
		for _, escalation := range state.Escalations {
			if _, ok := transitions[escalation.TransitionID]; !ok {
				return fmt.Errorf("escalation %s of state %s references unknown transition %s",
					escalation.ID, state.ID, escalation.TransitionID)
			}
		}
	}

	return nil
}

// InitialState returns the template's initial state, or nil when the template is malformed.
func (t *WorkflowTemplate) InitialState() *State {
	for _, state := range t.States {
		if state.Initial {
			return state
		}
	}

	return nil
}

func (t *WorkflowTemplate) StateByID(id string) *State {
	for _, state := range t.States {
		if state.ID == id {
			return state
		}
	}

	return nil
}

func (t *WorkflowTemplate) TransitionByID(id string) *Transition {
	for _, transition := range t.Transitions {
		if transition.ID == id {
			return transition
		}
	}

	return nil
}

// OriginTransitions returns the transitions leaving the given state, in declaration order.
func (t *WorkflowTemplate) OriginTransitions(stateID string) []*Transition {
	result := make([]*Transition, 0)

	for _, transition := range t.Transitions {
		if transition.OriginStateID == stateID {
			result = append(result, transition)
		}
	}

	return result
}

// DestinationTransitions returns the transitions arriving at the given state.
func (t *WorkflowTemplate) DestinationTransitions(stateID string) []*Transition {
	result := make([]*Transition, 0)

	for _, transition := range t.Transitions {
		if transition.DestinationStateID == stateID {
			result = append(result, transition)
		}
	}

	return result
}

// IsEdgeState reports whether the state sits on the border of the graph.
// Only diagrams use it.
func (t *WorkflowTemplate) IsEdgeState(state *State) bool {
	return state.Initial ||
		len(t.OriginTransitions(state.ID)) == 0 ||
		len(t.DestinationTransitions(state.ID)) == 0
}

// AppliesTo reports whether the template auto-launches for the given document type.
func (t *WorkflowTemplate) AppliesTo(documentTypeID string) bool {
	for _, id := range t.DocumentTypeIDs {
		if id == documentTypeID {
			return true
		}
	}

	return false
}
