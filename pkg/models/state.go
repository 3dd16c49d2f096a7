package models

import (
	"sort"
	"strings"
	"time"
)

type ActionWhen string

const (
	ActionOnEntry ActionWhen = "on_entry"
	ActionOnExit  ActionWhen = "on_exit"
)

// State is a node of a workflow template.
type State struct {
	ID          string         `json:"id"`
	TemplateID  string         `json:"template_id"`
	Label       string         `json:"label"                validate:"required,max=255"`
	Initial     bool           `json:"initial"`
	Final       bool           `json:"final"`
	Completion  int            `json:"completion"           validate:"gte=0,lte=100"`
	Actions     []*StateAction `json:"actions,omitempty"    validate:"dive"`
	Escalations []*Escalation  `json:"escalations,omitempty" validate:"dive"`
}

// StateAction binds an action backend to a state's entry or exit.
type StateAction struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"               validate:"required,max=255"`
	Type      string         `json:"type"                validate:"required"`
	Config    map[string]any `json:"config,omitempty"`
	When      ActionWhen     `json:"when"                validate:"required,oneof=on_entry on_exit"`
	Enabled   bool           `json:"enabled"`
	Order     int            `json:"order"`
	Condition *Condition     `json:"condition,omitempty"`
}

// EntryActions returns the enabled on-entry actions in execution order.
func (s *State) EntryActions() []*StateAction {
	return s.actions(ActionOnEntry)
}

// ExitActions returns the enabled on-exit actions in execution order.
func (s *State) ExitActions() []*StateAction {
	return s.actions(ActionOnExit)
}

// actions keeps declaration order among actions sharing the same Order value.
func (s *State) actions(when ActionWhen) []*StateAction {
	result := make([]*StateAction, 0, len(s.Actions))

	for _, action := range s.Actions {
		if action.Enabled && action.When == when {
			result = append(result, action)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Order < result[j].Order
	})

	return result
}

// ActionsDisplay returns the sorted labels of all the state's actions.
func (s *State) ActionsDisplay() string {
	labels := make([]string, 0, len(s.Actions))
	for _, action := range s.Actions {
		labels = append(labels, action.Label)
	}

	sort.Strings(labels)

	return strings.Join(labels, ", ")
}

// EnabledEscalations returns the enabled escalations, highest priority first.
func (s *State) EnabledEscalations() []*Escalation {
	result := make([]*Escalation, 0, len(s.Escalations))

	for _, escalation := range s.Escalations {
		if escalation.Enabled {
			result = append(result, escalation)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority > result[j].Priority
	})

	return result
}

type EscalationUnit string

const (
	UnitSeconds EscalationUnit = "seconds"
	UnitMinutes EscalationUnit = "minutes"
	UnitHours   EscalationUnit = "hours"
	UnitDays    EscalationUnit = "days"
	UnitWeeks   EscalationUnit = "weeks"
)

// Escalation fires a transition once an instance has been parked in a state long enough.
type Escalation struct {
	ID           string         `json:"id"`
	TransitionID string         `json:"transition_id" validate:"required"`
	Amount       int            `json:"amount"        validate:"gt=0"`
	Unit         EscalationUnit `json:"unit"          validate:"required,oneof=seconds minutes hours days weeks"`
	Enabled      bool           `json:"enabled"`
	Priority     int            `json:"priority"`
	Comment      string         `json:"comment,omitempty"`
	Condition    *Condition     `json:"condition,omitempty"`
}

func (e *Escalation) Delay() time.Duration {
	unit := time.Second

	switch e.Unit {
	case UnitMinutes:
		unit = time.Minute
	case UnitHours:
		unit = time.Hour
	case UnitDays:
		unit = 24 * time.Hour
	case UnitWeeks:
		unit = 7 * 24 * time.Hour
	case UnitSeconds:
	}

	return time.Duration(e.Amount) * unit
}

// Due reports whether the escalation is ripe for a state entered at enteredAt.
func (e *Escalation) Due(enteredAt, now time.Time) bool {
	return !now.Before(enteredAt.Add(e.Delay()))
}
