// Package events defines the notifications emitted over the lifecycle of workflow instances.
package events

import (
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "docstates.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowLaunchedEvent   EventType = "workflow.launched"
	TransitionExecutedEvent EventType = "transition.executed"
	ActionFailedEvent       EventType = "action.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	DocumentID string         `json:"document_id"`
	TemplateID string         `json:"template_id"`
	InstanceID string         `json:"instance_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the common fields of an event about instance.
func NewBaseEvent(eventType EventType, instance *models.WorkflowInstance) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		DocumentID: instance.DocumentID,
		TemplateID: instance.TemplateID,
		InstanceID: instance.ID,
	}
}

type WorkflowLaunched struct {
	BaseEvent

	StateID string `json:"state_id,omitempty"`
}

func (WorkflowLaunched) GetType() EventType {
	return WorkflowLaunchedEvent
}

type TransitionExecuted struct {
	BaseEvent

	TransitionID       string `json:"transition_id"`
	OriginStateID      string `json:"origin_state_id,omitempty"`
	DestinationStateID string `json:"destination_state_id"`
	LogEntryID         string `json:"log_entry_id"`
	UserID             string `json:"user_id,omitempty"`
	Comment            string `json:"comment,omitempty"`
	Escalated          bool   `json:"escalated"`
}

func (TransitionExecuted) GetType() EventType {
	return TransitionExecutedEvent
}

type ActionFailed struct {
	BaseEvent

	StateID    string            `json:"state_id"`
	ActionID   string            `json:"action_id"`
	ActionType string            `json:"action_type"`
	Phase      models.ActionWhen `json:"phase"`
	Error      string            `json:"error"`
}

func (ActionFailed) GetType() EventType {
	return ActionFailedEvent
}
