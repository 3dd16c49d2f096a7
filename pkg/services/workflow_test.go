package services_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/docstates/pkg/access"
	logaction "github.com/dukex/docstates/pkg/actions/log"
	"github.com/dukex/docstates/pkg/actions/setcontext"
	"github.com/dukex/docstates/pkg/eventbus"
	"github.com/dukex/docstates/pkg/locking"
	"github.com/dukex/docstates/pkg/mocks"
	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
	"github.com/dukex/docstates/pkg/persistence/file"
	"github.com/dukex/docstates/pkg/registry"
	"github.com/dukex/docstates/pkg/services"
	"github.com/dukex/docstates/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	clerk   = &models.User{ID: "clerk", Username: "clerk"}
	manager = &models.User{ID: "manager", Username: "manager"}
)

func invoiceTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:              "invoice",
		Label:           "Invoice approval",
		InternalName:    "invoice_approval",
		AutoLaunch:      true,
		DocumentTypeIDs: []string{"invoice"},
		States: []*models.State{
			{
				ID: "received", Label: "Received", Initial: true,
				Actions: []*models.StateAction{
					{
						ID: "stamp", Label: "Stamp", Type: "set_context", When: models.ActionOnEntry, Enabled: true,
						Config: map[string]any{"key": "received_label", "value": "{{ .document.label }}"},
					},
				},
			},
			{
				ID: "pending", Label: "Pending approval", Completion: 50,
				Actions: []*models.StateAction{
					{
						ID: "announce", Label: "Announce", Type: "log", When: models.ActionOnEntry, Enabled: true,
						Config: map[string]any{"message": "{{ .document.label }} awaits approval"},
					},
				},
				Escalations: []*models.Escalation{
					{ID: "auto-approve", TransitionID: "approve", Amount: 1, Unit: models.UnitHours, Enabled: true, Comment: "Approved automatically", Priority: 1},
					{
						ID: "urgent", TransitionID: "reject", Amount: 30, Unit: models.UnitMinutes, Enabled: true, Priority: 5,
						Condition: &models.Condition{Expression: "{{ .workflow_instance_context.urgent }}"},
					},
				},
			},
			{ID: "approved", Label: "Approved", Final: true, Completion: 100},
		},
		Transitions: []*models.Transition{
			{ID: "submit", Label: "Submit", OriginStateID: "received", DestinationStateID: "pending", Permission: "submit"},
			{ID: "approve", Label: "Approve", OriginStateID: "pending", DestinationStateID: "approved", Permission: "approve"},
			{ID: "reject", Label: "Reject", OriginStateID: "pending", DestinationStateID: "received", Permission: "approve"},
		},
	}
}

type fixture struct {
	ctx         context.Context
	persistence *file.Persistence
	service     *services.Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := t.Context()
	p := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(setcontext.NewActionFactory())

	acl, err := access.NewACL([]access.Grant{
		{User: "clerk", Permission: "submit"},
		{User: "manager", Permission: "approve"},
		{User: "manager", Permission: "view", Object: "inv-1"},
	})
	require.NoError(t, err)

	machine := workflow.NewMachine(p, acl, locking.NewLocal(), eventbus.Discard, slog.Default(), workflow.Config{})
	service := services.NewWorkflow(p, reg, machine, acl, slog.Default())

	_, err = service.SaveTemplate(ctx, invoiceTemplate())
	require.NoError(t, err)

	for _, document := range []*models.Document{
		{ID: "inv-1", Label: "Invoice 1", DocumentTypeID: "invoice"},
		{ID: "inv-2", Label: "Invoice 2", DocumentTypeID: "invoice"},
		{ID: "memo-1", Label: "Memo", DocumentTypeID: "memo"},
	} {
		require.NoError(t, p.DocumentRepository().Save(ctx, document))
	}

	return &fixture{ctx: ctx, persistence: p, service: service}
}

func (f *fixture) launch(t *testing.T, documentID string) *models.WorkflowInstance {
	t.Helper()

	instance, err := f.service.Launch(f.ctx, documentID, "invoice")
	require.NoError(t, err)

	return instance
}

func TestWorkflow_HealthCheck(t *testing.T) {
	f := newFixture(t)

	message, ok := f.service.HealthCheck(f.ctx)
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestWorkflow_HealthCheckUnhealthy(t *testing.T) {
	p := &mocks.MockPersistence{}
	p.On("ErrorLogRepository").Return(nil)
	p.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	machine := workflow.NewMachine(p, access.AllowAll{}, locking.NewLocal(), eventbus.Discard, slog.Default(), workflow.Config{})
	service := services.NewWorkflow(p, registry.NewRegistry(slog.Default()), machine, access.AllowAll{}, slog.Default())

	message, ok := service.HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer is unhealthy: connection refused", message)
}

func TestWorkflow_DocumentsAccessError(t *testing.T) {
	f := newFixture(t)
	f.launch(t, "inv-1")

	checker := &mocks.MockAccessChecker{}
	checker.On("Can", mock.Anything, "view", manager, mock.Anything).Return(false, errors.New("directory offline"))

	machine := workflow.NewMachine(f.persistence, checker, locking.NewLocal(), eventbus.Discard, slog.Default(), workflow.Config{})
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(setcontext.NewActionFactory())
	service := services.NewWorkflow(f.persistence, reg, machine, checker, slog.Default())

	_, err := service.Documents(f.ctx, "invoice", "received", "view", manager)
	require.EqualError(t, err, "directory offline")

	checker.AssertExpectations(t)
}

func TestWorkflow_SaveTemplateRejectsInvalid(t *testing.T) {
	f := newFixture(t)

	tpl := invoiceTemplate()
	tpl.ID = "broken"
	tpl.States[0].Initial = false

	_, err := f.service.SaveTemplate(f.ctx, tpl)
	require.ErrorIs(t, err, services.ErrInvalidTemplate)
	assert.True(t, services.IsValidationError(err))

	tpl = invoiceTemplate()
	tpl.ID = "unbound"
	tpl.States[0].Actions[0].Type = "teleport"

	_, err = f.service.SaveTemplate(f.ctx, tpl)
	require.ErrorIs(t, err, services.ErrInvalidTemplate)
}

func TestWorkflow_SaveTemplateAssignsIDs(t *testing.T) {
	f := newFixture(t)

	tpl := &models.WorkflowTemplate{
		Label:        "Simple",
		InternalName: "simple",
		States: []*models.State{
			{Label: "Open", Initial: true},
		},
	}

	saved, err := f.service.SaveTemplate(f.ctx, tpl)
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.NotEmpty(t, saved.States[0].ID)
	assert.Equal(t, saved.ID, saved.States[0].TemplateID)

	def, err := f.service.Definition(f.ctx, saved.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, def.Hash)
}

func TestWorkflow_LaunchRunsInitialEntryActions(t *testing.T) {
	f := newFixture(t)

	instance := f.launch(t, "inv-1")
	require.NotNil(t, instance.CurrentStateID)
	assert.Equal(t, "received", *instance.CurrentStateID)
	assert.Equal(t, "Invoice 1", instance.Context["received_label"])

	state, err := f.service.CurrentState(f.ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Received", state.Label)

	_, err = f.service.Launch(f.ctx, "inv-1", "invoice")
	require.ErrorIs(t, err, persistence.ErrInstanceAlreadyExists)
	assert.True(t, services.IsConflictError(err))
}

func TestWorkflow_AutoLaunch(t *testing.T) {
	f := newFixture(t)

	launched, err := f.service.AutoLaunch(f.ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, launched, 1)
	assert.Equal(t, "invoice", launched[0].TemplateID)

	launched, err = f.service.AutoLaunch(f.ctx, "inv-1")
	require.NoError(t, err)
	assert.Empty(t, launched)

	launched, err = f.service.AutoLaunch(f.ctx, "memo-1")
	require.NoError(t, err)
	assert.Empty(t, launched)
}

func TestWorkflow_DoTransitionAndHistory(t *testing.T) {
	f := newFixture(t)
	instance := f.launch(t, "inv-1")

	last, err := f.service.LastLogEntry(f.ctx, instance.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	transitions, err := f.service.ValidTransitions(f.ctx, instance.ID, clerk)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "submit", transitions[0].ID)

	_, err = f.service.DoTransition(f.ctx, instance.ID, "approve", manager, "", nil)
	require.ErrorIs(t, err, workflow.ErrIllegalTransition)

	entry, err := f.service.DoTransition(f.ctx, instance.ID, "submit", clerk, "please review", nil)
	require.NoError(t, err)
	assert.Equal(t, "please review", entry.Comment)

	_, err = f.service.DoTransition(f.ctx, instance.ID, "approve", clerk, "", nil)
	require.ErrorIs(t, err, workflow.ErrPermissionDenied)

	_, err = f.service.DoTransition(f.ctx, instance.ID, "approve", manager, "", nil)
	require.NoError(t, err)

	entries, err := f.service.LogEntries(f.ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "submit", entries[0].TransitionID)
	assert.Equal(t, "approve", entries[1].TransitionID)

	last, err = f.service.LastLogEntry(f.ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entries[1].ID, last.ID)

	values, err := f.service.Context(f.ctx, instance.ID)
	require.NoError(t, err)
	current := values["workflow_instance"].(map[string]any)["current_state"].(map[string]any)
	assert.Equal(t, "approved", current["id"])
}

func TestWorkflow_Documents(t *testing.T) {
	f := newFixture(t)
	first := f.launch(t, "inv-1")
	f.launch(t, "inv-2")

	documents, err := f.service.Documents(f.ctx, "invoice", "received", "", nil)
	require.NoError(t, err)
	assert.Len(t, documents, 2)

	count, err := f.service.DocumentCount(f.ctx, "invoice", "received", "view", manager)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = f.service.DoTransition(f.ctx, first.ID, "submit", clerk, "", nil)
	require.NoError(t, err)
	_, err = f.service.DoTransition(f.ctx, first.ID, "approve", manager, "", nil)
	require.NoError(t, err)

	documents, err = f.service.Documents(f.ctx, "invoice", "approved", "", nil)
	require.NoError(t, err)
	require.Len(t, documents, 1)
	assert.Equal(t, "inv-1", documents[0].ID)

	_, err = f.service.Documents(f.ctx, "invoice", "lost", "", nil)
	require.ErrorIs(t, err, services.ErrStateNotFound)
}

func TestWorkflow_DocumentsIgnoreCompleted(t *testing.T) {
	f := newFixture(t)
	f.launch(t, "inv-1")

	template := invoiceTemplate()
	template.IgnoreCompleted = true
	_, err := f.service.SaveTemplate(f.ctx, template)
	require.NoError(t, err)

	for _, stateID := range []string{"received", "pending", "approved"} {
		documents, err := f.service.Documents(f.ctx, "invoice", stateID, "", nil)
		require.NoError(t, err)
		assert.Empty(t, documents, stateID)
	}

	count, err := f.service.DocumentCount(f.ctx, "invoice", "received", "view", manager)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWorkflow_SaveTemplateKeepsOccupiedStates(t *testing.T) {
	f := newFixture(t)
	instance := f.launch(t, "inv-1")

	_, err := f.service.DoTransition(f.ctx, instance.ID, "submit", clerk, "", nil)
	require.NoError(t, err)

	withoutPending := invoiceTemplate()
	withoutPending.States = []*models.State{withoutPending.States[0], withoutPending.States[2]}
	withoutPending.Transitions = []*models.Transition{
		{ID: "fast-track", Label: "Fast track", OriginStateID: "received", DestinationStateID: "approved", Permission: "approve"},
	}

	_, err = f.service.SaveTemplate(f.ctx, withoutPending)
	require.ErrorIs(t, err, persistence.ErrTemplateInUse)
	assert.True(t, services.IsConflictError(err))

	state, err := f.service.CurrentState(f.ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "pending", state.ID)

	transitions, err := f.service.ValidTransitions(f.ctx, instance.ID, manager)
	require.NoError(t, err)
	assert.Len(t, transitions, 2)

	replayed, err := f.service.Recover(f.ctx, instance.ID)
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestWorkflow_Transition(t *testing.T) {
	f := newFixture(t)

	transition, err := f.service.Transition(f.ctx, "invoice", "submit")
	require.NoError(t, err)
	assert.Equal(t, "Submit", transition.Label)

	_, err = f.service.Transition(f.ctx, "invoice", "teleport")
	require.ErrorIs(t, err, services.ErrTransitionNotFound)
}

func TestWorkflow_Escalate(t *testing.T) {
	f := newFixture(t)
	instance := f.launch(t, "inv-1")

	entry, err := f.service.Escalate(f.ctx, instance.ID, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, entry, "received has no escalations")

	_, err = f.service.DoTransition(f.ctx, instance.ID, "submit", clerk, "", nil)
	require.NoError(t, err)

	candidates, err := f.service.EscalationCandidates(f.ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, instance.ID, candidates[0].ID)

	entry, err = f.service.Escalate(f.ctx, instance.ID, time.Now().Add(10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, entry, "nothing is due yet")

	// urgent has the higher priority but its condition does not hold
	entry, err = f.service.Escalate(f.ctx, instance.ID, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "approve", entry.TransitionID)
	assert.Equal(t, "Approved automatically", entry.Comment)

	state, err := f.service.CurrentState(f.ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", state.ID)
}

func TestWorkflow_EscalatePicksHighestPriority(t *testing.T) {
	f := newFixture(t)
	instance := f.launch(t, "inv-1")

	_, err := f.service.DoTransition(f.ctx, instance.ID, "submit", clerk, "", nil)
	require.NoError(t, err)

	stored, err := f.persistence.InstanceRepository().GetByID(f.ctx, instance.ID)
	require.NoError(t, err)
	stored.Context["urgent"] = true
	require.NoError(t, f.persistence.InstanceRepository().Update(f.ctx, stored))

	entry, err := f.service.Escalate(f.ctx, instance.ID, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "reject", entry.TransitionID)
}

func TestWorkflow_DeleteTemplateInUse(t *testing.T) {
	f := newFixture(t)
	f.launch(t, "inv-1")

	err := f.service.DeleteTemplate(f.ctx, "invoice")
	require.ErrorIs(t, err, persistence.ErrTemplateInUse)

	_, err = f.service.Definition(f.ctx, "invoice")
	require.NoError(t, err)
}

func TestWorkflow_Recover(t *testing.T) {
	f := newFixture(t)
	instance := f.launch(t, "inv-1")

	_, err := f.service.DoTransition(f.ctx, instance.ID, "submit", clerk, "", nil)
	require.NoError(t, err)

	stored, err := f.persistence.InstanceRepository().GetByID(f.ctx, instance.ID)
	require.NoError(t, err)
	stored.SetCurrentState("received", time.Now())
	require.NoError(t, f.persistence.InstanceRepository().Update(f.ctx, stored))

	repaired, err := f.service.Recover(f.ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, repaired)

	state, err := f.service.CurrentState(f.ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", state.ID)
}
