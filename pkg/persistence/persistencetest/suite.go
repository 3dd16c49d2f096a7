// Package persistencetest holds the behaviour every persistence implementation must share.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty persistence for one subtest.
type Factory func(t *testing.T) (persistence.Persistence, context.Context)

func Template() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:              "01900000-0000-7000-8000-000000000001",
		Label:           "Invoice approval",
		InternalName:    "invoice_approval",
		AutoLaunch:      true,
		IgnoreCompleted: true,
		DocumentTypeIDs: []string{"invoice"},
		States: []*models.State{
			{
				ID: "01900000-0000-7000-8000-0000000000a1", Label: "Draft", Initial: true,
				Actions: []*models.StateAction{
					{ID: "act-1", Label: "Log", Type: "log", When: models.ActionOnExit, Enabled: true, Config: map[string]any{"message": "leaving"}},
				},
			},
			{
				ID: "01900000-0000-7000-8000-0000000000a2", Label: "Review", Completion: 50,
				Escalations: []*models.Escalation{
					{ID: "esc-1", TransitionID: "01900000-0000-7000-8000-0000000000b2", Amount: 2, Unit: models.UnitDays, Enabled: true},
				},
			},
			{ID: "01900000-0000-7000-8000-0000000000a3", Label: "Approved", Final: true, Completion: 100},
		},
		Transitions: []*models.Transition{
			{
				ID: "01900000-0000-7000-8000-0000000000b1", Label: "Submit",
				OriginStateID:      "01900000-0000-7000-8000-0000000000a1",
				DestinationStateID: "01900000-0000-7000-8000-0000000000a2",
				Permission:         "submit",
				Fields:             []*models.TransitionField{{Name: "reason", Type: models.FieldString, Required: true}},
			},
			{
				ID: "01900000-0000-7000-8000-0000000000b2", Label: "Approve",
				OriginStateID:      "01900000-0000-7000-8000-0000000000a2",
				DestinationStateID: "01900000-0000-7000-8000-0000000000a3",
				Permission:         "approve",
				Condition:          &models.Condition{Expression: "{{ .workflow_instance_context.ok }}"},
			},
		},
	}
}

// Run exercises every repository of the persistence built by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("templates", func(t *testing.T) { testTemplates(t, factory) })
	t.Run("template graph in use", func(t *testing.T) { testTemplateGraphInUse(t, factory) })
	t.Run("instances", func(t *testing.T) { testInstances(t, factory) })
	t.Run("commit transition", func(t *testing.T) { testCommitTransition(t, factory) })
	t.Run("error log", func(t *testing.T) { testErrorLog(t, factory) })
	t.Run("document delete cascades", func(t *testing.T) { testDocumentDelete(t, factory) })
}

func seed(t *testing.T, ctx context.Context, p persistence.Persistence) (*models.WorkflowTemplate, *models.Document) {
	t.Helper()

	template := Template()
	require.NoError(t, p.TemplateRepository().Save(ctx, template))

	document := &models.Document{ID: "01900000-0000-7000-8000-0000000000d1", Label: "Invoice 1", DocumentTypeID: "invoice"}
	require.NoError(t, p.DocumentRepository().Save(ctx, document))

	return template, document
}

func testTemplates(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.TemplateRepository()

	_, err := repo.GetByID(ctx, "01900000-0000-7000-8000-0000000000ff")
	require.ErrorIs(t, err, persistence.ErrTemplateNotFound)

	template := Template()
	require.NoError(t, repo.Save(ctx, template))
	assert.False(t, template.CreatedAt.IsZero())

	loaded, err := repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, template.Label, loaded.Label)
	assert.True(t, loaded.IgnoreCompleted)
	assert.Equal(t, []string{"invoice"}, loaded.DocumentTypeIDs)
	require.Len(t, loaded.States, 3)
	assert.Equal(t, "Draft", loaded.States[0].Label)
	assert.Equal(t, template.ID, loaded.States[0].TemplateID)
	require.Len(t, loaded.States[0].Actions, 1)
	assert.Equal(t, "leaving", loaded.States[0].Actions[0].Config["message"])
	require.Len(t, loaded.States[1].Escalations, 1)
	assert.Equal(t, models.UnitDays, loaded.States[1].Escalations[0].Unit)
	require.Len(t, loaded.Transitions, 2)
	assert.Equal(t, "Submit", loaded.Transitions[0].Label)
	require.Len(t, loaded.Transitions[0].Fields, 1)
	assert.Equal(t, "{{ .workflow_instance_context.ok }}", loaded.Transitions[1].Condition.Expression)

	loaded.Label = "Renamed"
	loaded.States = loaded.States[:2]
	loaded.Transitions = loaded.Transitions[:1]
	loaded.States[1].Escalations = nil
	require.NoError(t, repo.Save(ctx, loaded))

	reloaded, err := repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Label)
	assert.Len(t, reloaded.States, 2)
	assert.Len(t, reloaded.Transitions, 1)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, template.ID))

	_, err = repo.GetByID(ctx, template.ID)
	require.ErrorIs(t, err, persistence.ErrTemplateNotFound)
}

func testTemplateGraphInUse(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	template, document := seed(t, ctx, p)
	repo := p.TemplateRepository()

	instance := &models.WorkflowInstance{DocumentID: document.ID, TemplateID: template.ID}
	require.NoError(t, p.InstanceRepository().Create(ctx, instance))

	submit := template.Transitions[0]
	instance.SetCurrentState(submit.DestinationStateID, time.Now().UTC())
	require.NoError(t, p.InstanceRepository().CommitTransition(ctx, instance, &models.LogEntry{
		TransitionID: submit.ID,
		Datetime:     time.Now().UTC(),
	}))

	withoutReview := Template()
	withoutReview.States = []*models.State{withoutReview.States[0], withoutReview.States[2]}
	withoutReview.Transitions = nil
	require.ErrorIs(t, repo.Save(ctx, withoutReview), persistence.ErrTemplateInUse)

	withoutSubmit := Template()
	withoutSubmit.Transitions = withoutSubmit.Transitions[1:]
	require.ErrorIs(t, repo.Save(ctx, withoutSubmit), persistence.ErrTemplateInUse)

	loaded, err := repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.States, 3)
	assert.Len(t, loaded.Transitions, 2)

	// approved is neither occupied nor logged
	trimmed := Template()
	trimmed.Label = "Trimmed"
	trimmed.States = trimmed.States[:2]
	trimmed.States[1].Escalations = nil
	trimmed.Transitions = trimmed.Transitions[:1]
	require.NoError(t, repo.Save(ctx, trimmed))

	loaded, err = repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trimmed", loaded.Label)
	assert.Len(t, loaded.States, 2)
}

func testInstances(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	template, document := seed(t, ctx, p)
	repo := p.InstanceRepository()

	instance := &models.WorkflowInstance{DocumentID: document.ID, TemplateID: template.ID}
	require.NoError(t, repo.Create(ctx, instance))
	assert.NotEmpty(t, instance.ID)
	assert.Equal(t, int64(1), instance.Version)

	duplicate := &models.WorkflowInstance{DocumentID: document.ID, TemplateID: template.ID}
	require.ErrorIs(t, repo.Create(ctx, duplicate), persistence.ErrInstanceAlreadyExists)

	require.ErrorIs(t, p.TemplateRepository().Delete(ctx, template.ID), persistence.ErrTemplateInUse)

	loaded, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Unstarted())

	initial := template.InitialState().ID
	loaded.SetCurrentState(initial, time.Now().UTC())
	loaded.Context["amount"] = 10.0
	require.NoError(t, repo.Update(ctx, loaded))
	assert.Equal(t, int64(2), loaded.Version)

	// instance still carries the version read before the update
	instance.SetCurrentState(initial, time.Now().UTC())
	require.ErrorIs(t, repo.Update(ctx, instance), persistence.ErrConcurrentModification)

	atState, err := repo.GetByState(ctx, template.ID, initial)
	require.NoError(t, err)
	require.Len(t, atState, 1)
	assert.Equal(t, 10.0, atState[0].Context["amount"])

	byDocument, err := repo.GetByDocument(ctx, document.ID)
	require.NoError(t, err)
	assert.Len(t, byDocument, 1)

	_, err = repo.GetByID(ctx, "01900000-0000-7000-8000-0000000000ee")
	require.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func testCommitTransition(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	template, document := seed(t, ctx, p)
	repo := p.InstanceRepository()

	instance := &models.WorkflowInstance{DocumentID: document.ID, TemplateID: template.ID}
	require.NoError(t, repo.Create(ctx, instance))

	last, err := repo.LastLogEntry(ctx, instance.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	now := time.Now().UTC().Truncate(time.Microsecond)
	stale := *instance

	for i, transition := range template.Transitions {
		instance.SetCurrentState(transition.DestinationStateID, now)

		entry := &models.LogEntry{
			TransitionID: transition.ID,
			UserID:       "alice",
			Datetime:     now,
			Comment:      transition.Label,
			ExtraData:    map[string]any{"step": float64(i)},
		}
		require.NoError(t, repo.CommitTransition(ctx, instance, entry))
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, instance.ID, entry.InstanceID)
	}

	entries, err := repo.LogEntries(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, template.Transitions[0].ID, entries[0].TransitionID)
	assert.Equal(t, template.Transitions[1].ID, entries[1].TransitionID)
	assert.Less(t, entries[0].Sequence, entries[1].Sequence)
	assert.Equal(t, 1.0, entries[1].ExtraData["step"])
	assert.Equal(t, "alice", entries[0].UserID)

	last, err = repo.LastLogEntry(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entries[1].ID, last.ID)

	loaded, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, template.Transitions[1].DestinationStateID, *loaded.CurrentStateID)

	stale.SetCurrentState(template.Transitions[0].DestinationStateID, now)
	err = repo.CommitTransition(ctx, &stale, &models.LogEntry{TransitionID: template.Transitions[0].ID, Datetime: now})
	require.ErrorIs(t, err, persistence.ErrConcurrentModification)

	entries, err = repo.LogEntries(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func testErrorLog(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	_, document := seed(t, ctx, p)
	repo := p.ErrorLogRepository()

	require.NoError(t, repo.Create(ctx, document.ID, "document_states", "RuntimeError; boom"))
	require.NoError(t, repo.Create(ctx, document.ID, "document_states", "RuntimeError; again"))
	require.NoError(t, repo.Create(ctx, document.ID, "ocr", "OCRError; unreadable"))

	entries, err := repo.GetByDocument(ctx, document.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	require.NoError(t, repo.Clear(ctx, document.ID, "document_states"))

	entries, err = repo.GetByDocument(ctx, document.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ocr", entries[0].Domain)

	require.NoError(t, repo.Clear(ctx, document.ID, "document_states"))
}

func testDocumentDelete(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	template, document := seed(t, ctx, p)

	instance := &models.WorkflowInstance{DocumentID: document.ID, TemplateID: template.ID}
	require.NoError(t, p.InstanceRepository().Create(ctx, instance))

	instance.SetCurrentState(template.Transitions[0].DestinationStateID, time.Now().UTC())
	require.NoError(t, p.InstanceRepository().CommitTransition(ctx, instance, &models.LogEntry{
		TransitionID: template.Transitions[0].ID,
		Datetime:     time.Now().UTC(),
	}))
	require.NoError(t, p.ErrorLogRepository().Create(ctx, document.ID, "document_states", "Error; x"))

	require.NoError(t, p.DocumentRepository().Delete(ctx, document.ID))

	_, err := p.DocumentRepository().GetByID(ctx, document.ID)
	require.ErrorIs(t, err, persistence.ErrDocumentNotFound)

	_, err = p.InstanceRepository().GetByID(ctx, instance.ID)
	require.ErrorIs(t, err, persistence.ErrInstanceNotFound)

	entries, err := p.InstanceRepository().LogEntries(ctx, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	notes, err := p.ErrorLogRepository().GetByDocument(ctx, document.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)

	require.NoError(t, p.TemplateRepository().Delete(ctx, template.ID))
}
