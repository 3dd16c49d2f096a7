package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
	"github.com/dukex/docstates/pkg/protocol"
	"github.com/dukex/docstates/pkg/workflow"
	"github.com/patrickmn/go-cache"
)

const (
	definitionTTL             = 5 * time.Minute
	definitionCleanupInterval = 10 * time.Minute
)

type Workflow struct {
	persistence persistence.Persistence
	binder      workflow.ActionBinder
	machine     *workflow.Machine
	access      protocol.AccessChecker
	definitions *cache.Cache
	logger      *slog.Logger
}

func NewWorkflow(
	p persistence.Persistence,
	binder workflow.ActionBinder,
	machine *workflow.Machine,
	access protocol.AccessChecker,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		persistence: p,
		binder:      binder,
		machine:     machine,
		access:      access,
		definitions: cache.New(definitionTTL, definitionCleanupInterval),
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Definition returns the compiled template. Compiled templates are cached until the template is saved or deleted.
func (w *Workflow) Definition(ctx context.Context, templateID string) (*workflow.Definition, error) {
	if cached, ok := w.definitions.Get(templateID); ok {
		return cached.(*workflow.Definition), nil
	}

	template, err := w.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	def, err := workflow.Compile(template, w.binder)
	if err != nil {
		return nil, NewValidationError("Definition", "INVALID_TEMPLATE", err.Error(), errors.Join(ErrInvalidTemplate, err))
	}

	w.definitions.Set(templateID, def, cache.DefaultExpiration)

	return def, nil
}

func (w *Workflow) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return w.persistence.TemplateRepository().GetAll(ctx)
}

// SaveTemplate assigns missing identifiers, checks that the template compiles, and stores it.
func (w *Workflow) SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if err := assignIDs(template); err != nil {
		return nil, err
	}

	def, err := workflow.Compile(template, w.binder)
	if err != nil {
		return nil, NewValidationError("SaveTemplate", "INVALID_TEMPLATE", err.Error(), errors.Join(ErrInvalidTemplate, err))
	}

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	err = w.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow template: %w", err)
	}

	w.definitions.Set(template.ID, def, cache.DefaultExpiration)

	w.logger.InfoContext(ctx, "Workflow template saved", "template_id", template.ID, "hash", def.Hash)

	return template, nil
}

func assignIDs(template *models.WorkflowTemplate) error {
	ensure := func(id *string) error {
		if *id != "" {
			return nil
		}

		generated, err := persistence.NewID()
		if err != nil {
			return err
		}

		*id = generated

		return nil
	}

	if err := ensure(&template.ID); err != nil {
		return err
	}

	for _, state := range template.States {
		if err := ensure(&state.ID); err != nil {
			return err
		}

		state.TemplateID = template.ID

		for _, action := range state.Actions {
			if err := ensure(&action.ID); err != nil {
				return err
			}
		}

		for _, escalation := range state.Escalations {
			if err := ensure(&escalation.ID); err != nil {
				return err
			}
		}
	}

	for _, transition := range template.Transitions {
		if err := ensure(&transition.ID); err != nil {
			return err
		}

		transition.TemplateID = template.ID
	}

	return nil
}

func (w *Workflow) DeleteTemplate(ctx context.Context, templateID string) error {
	err := w.persistence.TemplateRepository().Delete(ctx, templateID)
	if err != nil {
		return err
	}

	w.definitions.Delete(templateID)

	return nil
}

// Transition looks up a transition of a template.
func (w *Workflow) Transition(ctx context.Context, templateID, transitionID string) (*models.Transition, error) {
	def, err := w.Definition(ctx, templateID)
	if err != nil {
		return nil, err
	}

	transition := def.Template.TransitionByID(transitionID)
	if transition == nil {
		return nil, NewValidationError("Transition", "TRANSITION_NOT_FOUND",
			fmt.Sprintf("template %s has no transition %s", templateID, transitionID), ErrTransitionNotFound)
	}

	return transition, nil
}

// Launch starts the template on the document: the instance enters the initial state and its entry actions run.
func (w *Workflow) Launch(ctx context.Context, documentID, templateID string) (*models.WorkflowInstance, error) {
	if _, err := w.persistence.DocumentRepository().GetByID(ctx, documentID); err != nil {
		return nil, err
	}

	def, err := w.Definition(ctx, templateID)
	if err != nil {
		return nil, err
	}

	instance := &models.WorkflowInstance{
		DocumentID: documentID,
		TemplateID: def.Template.ID,
		Context:    map[string]any{},
	}

	err = w.persistence.InstanceRepository().Create(ctx, instance)
	if err != nil {
		return nil, err
	}

	startErr := w.machine.Start(ctx, def, instance.ID)

	launched, err := w.persistence.InstanceRepository().GetByID(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Workflow launched",
		"document_id", documentID,
		"template_id", templateID,
		"instance_id", launched.ID)

	return launched, startErr
}

// AutoLaunch launches every auto-launch template bound to the document's type that is not already running on it.
func (w *Workflow) AutoLaunch(ctx context.Context, documentID string) ([]*models.WorkflowInstance, error) {
	document, err := w.persistence.DocumentRepository().GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	templates, err := w.persistence.TemplateRepository().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	launched := make([]*models.WorkflowInstance, 0)

	for _, template := range templates {
		if !template.AutoLaunch || !template.AppliesTo(document.DocumentTypeID) {
			continue
		}

		instance, err := w.Launch(ctx, document.ID, template.ID)
		if errors.Is(err, persistence.ErrInstanceAlreadyExists) {
			continue
		}

		if err != nil {
			return launched, err
		}

		launched = append(launched, instance)
	}

	return launched, nil
}

// DoTransition applies a user transition to the instance and returns the new log entry.
func (w *Workflow) DoTransition(
	ctx context.Context,
	instanceID, transitionID string,
	user *models.User,
	comment string,
	extraData map[string]any,
) (*models.LogEntry, error) {
	def, _, err := w.instanceDefinition(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	return w.machine.ApplyTransition(ctx, def, instanceID, workflow.TransitionRequest{
		TransitionID: transitionID,
		User:         user,
		Comment:      comment,
		ExtraData:    extraData,
	})
}

// CurrentState returns nil while the instance is unstarted.
func (w *Workflow) CurrentState(ctx context.Context, instanceID string) (*models.State, error) {
	def, instance, err := w.instanceDefinition(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Unstarted() {
		return nil, nil //nolint:nilnil // unstarted instances have no state
	}

	return def.Template.StateByID(*instance.CurrentStateID), nil
}

func (w *Workflow) ValidTransitions(ctx context.Context, instanceID string, user *models.User) ([]*models.Transition, error) {
	def, instance, err := w.instanceDefinition(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	document, err := w.persistence.DocumentRepository().GetByID(ctx, instance.DocumentID)
	if err != nil {
		return nil, err
	}

	return w.machine.Evaluator().ValidTransitions(ctx, def, instance, document, user)
}

// Documents lists the documents whose instance of the template sits in the state. When permission is
// set, only documents on which user holds it are returned. Templates that ignore completed documents
// report none for every state.
func (w *Workflow) Documents(
	ctx context.Context,
	templateID, stateID, permission string,
	user *models.User,
) ([]*models.Document, error) {
	def, err := w.Definition(ctx, templateID)
	if err != nil {
		return nil, err
	}

	state := def.Template.StateByID(stateID)
	if state == nil {
		return nil, NewValidationError("Documents", "STATE_NOT_FOUND",
			fmt.Sprintf("template %s has no state %s", templateID, stateID), ErrStateNotFound)
	}

	documents := make([]*models.Document, 0)

	if def.Template.IgnoreCompleted {
		return documents, nil
	}

	instances, err := w.persistence.InstanceRepository().GetByState(ctx, templateID, stateID)
	if err != nil {
		return nil, err
	}

	for _, instance := range instances {
		document, err := w.persistence.DocumentRepository().GetByID(ctx, instance.DocumentID)
		if err != nil {
			return nil, err
		}

		if permission != "" {
			allowed, err := w.access.Can(ctx, permission, user, document)
			if err != nil {
				return nil, err
			}

			if !allowed {
				continue
			}
		}

		documents = append(documents, document)
	}

	return documents, nil
}

func (w *Workflow) DocumentCount(
	ctx context.Context,
	templateID, stateID, permission string,
	user *models.User,
) (int, error) {
	documents, err := w.Documents(ctx, templateID, stateID, permission, user)
	if err != nil {
		return 0, err
	}

	return len(documents), nil
}

func (w *Workflow) Instances(ctx context.Context, documentID string) ([]*models.WorkflowInstance, error) {
	return w.persistence.InstanceRepository().GetByDocument(ctx, documentID)
}

func (w *Workflow) LogEntries(ctx context.Context, instanceID string) ([]*models.LogEntry, error) {
	return w.persistence.InstanceRepository().LogEntries(ctx, instanceID)
}

// LastLogEntry returns nil for an instance without transitions.
func (w *Workflow) LastLogEntry(ctx context.Context, instanceID string) (*models.LogEntry, error) {
	return w.persistence.InstanceRepository().LastLogEntry(ctx, instanceID)
}

// Context returns the values conditions and actions see for the instance.
func (w *Workflow) Context(ctx context.Context, instanceID string) (map[string]any, error) {
	def, instance, err := w.instanceDefinition(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	document, err := w.persistence.DocumentRepository().GetByID(ctx, instance.DocumentID)
	if err != nil {
		return nil, err
	}

	return models.InstanceContext(document, def.Template, instance), nil
}

func (w *Workflow) ErrorLog(ctx context.Context, documentID string) ([]*models.ErrorLogEntry, error) {
	return w.persistence.ErrorLogRepository().GetByDocument(ctx, documentID)
}

// Recover repairs an instance whose state pointer diverged from its log.
func (w *Workflow) Recover(ctx context.Context, instanceID string) (bool, error) {
	def, _, err := w.instanceDefinition(ctx, instanceID)
	if err != nil {
		return false, err
	}

	return w.machine.Recover(ctx, def, instanceID)
}

// Escalate fires the highest priority escalation of the instance's state that is due at now and
// whose condition holds. It returns nil when nothing fired.
func (w *Workflow) Escalate(ctx context.Context, instanceID string, now time.Time) (*models.LogEntry, error) {
	def, instance, err := w.instanceDefinition(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Unstarted() {
		return nil, nil //nolint:nilnil // nothing to escalate
	}

	state := def.Template.StateByID(*instance.CurrentStateID)
	if state == nil {
		return nil, nil //nolint:nilnil // nothing to escalate
	}

	var values map[string]any

	for _, escalation := range state.EnabledEscalations() {
		if !escalation.Due(instance.StateChangedAt, now) {
			continue
		}

		if values == nil {
			values, err = w.Context(ctx, instanceID)
			if err != nil {
				return nil, err
			}
		}

		ok, err := def.EscalationCondition(escalation.ID).Evaluate(ctx, values)
		if err != nil {
			w.logger.WarnContext(ctx, "Escalation condition failed to evaluate",
				"instance_id", instanceID, "escalation_id", escalation.ID, "error", err)

			continue
		}

		if !ok {
			continue
		}

		w.logger.InfoContext(ctx, "Escalating workflow instance",
			"instance_id", instanceID,
			"state_id", state.ID,
			"escalation_id", escalation.ID,
			"transition_id", escalation.TransitionID)

		return w.machine.ApplyTransition(ctx, def, instanceID, workflow.TransitionRequest{
			TransitionID: escalation.TransitionID,
			Comment:      escalation.Comment,
			System:       true,
		})
	}

	return nil, nil //nolint:nilnil // nothing was due
}

// EscalationCandidates returns the started instances parked in states that have enabled escalations.
func (w *Workflow) EscalationCandidates(ctx context.Context) ([]*models.WorkflowInstance, error) {
	templates, err := w.persistence.TemplateRepository().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.WorkflowInstance, 0)

	for _, template := range templates {
		for _, state := range template.States {
			if len(state.EnabledEscalations()) == 0 {
				continue
			}

			instances, err := w.persistence.InstanceRepository().GetByState(ctx, template.ID, state.ID)
			if err != nil {
				return nil, err
			}

			candidates = append(candidates, instances...)
		}
	}

	return candidates, nil
}

func (w *Workflow) instanceDefinition(
	ctx context.Context,
	instanceID string,
) (*workflow.Definition, *models.WorkflowInstance, error) {
	instance, err := w.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	def, err := w.Definition(ctx, instance.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	return def, instance, nil
}
