package models

import "maps"

// ExecutionContext is what an action receives when it runs.
type ExecutionContext struct {
	Document *Document
	Template *WorkflowTemplate
	Instance *WorkflowInstance
	State    *State
	Action   *StateAction
	// LogEntry is nil for exit actions and for the entry actions run when an instance starts.
	LogEntry *LogEntry
	Values   map[string]any
}

// Set stores a value in the instance context. The engine persists it after the phase.
func (e *ExecutionContext) Set(key string, value any) {
	if e.Instance.Context == nil {
		e.Instance.Context = make(map[string]any)
	}

	e.Instance.Context[key] = value

	if instanceContext, ok := e.Values["workflow_instance_context"].(map[string]any); ok {
		instanceContext[key] = value
	}
}

// Detach returns a copy whose context writes stay private until they are merged back with Merge.
func (e *ExecutionContext) Detach() *ExecutionContext {
	instance := *e.Instance
	instance.Context = maps.Clone(e.Instance.Context)

	values := maps.Clone(e.Values)
	if instanceContext, ok := e.Values["workflow_instance_context"].(map[string]any); ok {
		values["workflow_instance_context"] = maps.Clone(instanceContext)
	}

	detached := *e
	detached.Instance = &instance
	detached.Values = values

	return &detached
}

// Merge applies the context writes of a detached copy. The copy must no longer be in use.
func (e *ExecutionContext) Merge(detached *ExecutionContext) {
	for key, value := range detached.Instance.Context {
		e.Set(key, value)
	}
}

// InstanceContext returns the base context shared by conditions and actions.
func InstanceContext(document *Document, template *WorkflowTemplate, instance *WorkflowInstance) map[string]any {
	var currentState any

	if !instance.Unstarted() {
		if state := template.StateByID(*instance.CurrentStateID); state != nil {
			currentState = map[string]any{
				"id":         state.ID,
				"label":      state.Label,
				"initial":    state.Initial,
				"final":      state.Final,
				"completion": state.Completion,
			}
		}
	}

	documentValues := map[string]any{}
	if document != nil {
		documentValues = map[string]any{
			"id":               document.ID,
			"label":            document.Label,
			"document_type_id": document.DocumentTypeID,
		}
	}

	instanceContext := make(map[string]any, len(instance.Context))
	for key, value := range instance.Context {
		instanceContext[key] = value
	}

	return map[string]any{
		"document": documentValues,
		"workflow_instance": map[string]any{
			"id":            instance.ID,
			"template_id":   instance.TemplateID,
			"template":      template.Label,
			"current_state": currentState,
		},
		"workflow_instance_context": instanceContext,
	}
}
