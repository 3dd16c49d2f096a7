package models

import "time"

// WorkflowInstance is the execution of a template against one document.
type WorkflowInstance struct {
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id"      validate:"required"`
	TemplateID     string         `json:"template_id"      validate:"required"`
	CurrentStateID *string        `json:"current_state_id"`
	Context        map[string]any `json:"context"`
	Version        int64          `json:"version"`
	StateChangedAt time.Time      `json:"state_changed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Unstarted reports whether the instance has not entered any state yet.
func (i *WorkflowInstance) Unstarted() bool {
	return i.CurrentStateID == nil
}

func (i *WorkflowInstance) SetCurrentState(stateID string, at time.Time) {
	i.CurrentStateID = &stateID
	i.StateChangedAt = at
}

// AccessObjectID scopes permission checks on an instance to its document.
func (i *WorkflowInstance) AccessObjectID() string {
	return i.DocumentID
}

// LogEntry records one applied transition. Entries are never modified.
type LogEntry struct {
	ID           string         `json:"id"`
	InstanceID   string         `json:"instance_id"`
	TransitionID string         `json:"transition_id"`
	UserID       string         `json:"user_id,omitempty"`
	Datetime     time.Time      `json:"datetime"`
	Sequence     int64          `json:"sequence"`
	Comment      string         `json:"comment,omitempty" validate:"max=4096"`
	ExtraData    map[string]any `json:"extra_data,omitempty"`
}

// Validate checks the fields supplied by the requester.
func (e *LogEntry) Validate() error {
	return validate.Struct(e)
}

// User is the actor requesting a transition.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SystemUser performs transitions fired by escalations.
var SystemUser = &User{ID: "system", Username: "system"}
