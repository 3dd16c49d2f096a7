package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/docstates/pkg/eventbus"
	"github.com/dukex/docstates/pkg/locking"
	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence/file"
	"github.com/dukex/docstates/pkg/protocol"
	"github.com/dukex/docstates/pkg/workflow"
	"github.com/stretchr/testify/require"
)

type binder map[string]protocol.Action

func (b binder) Bind(action *models.StateAction) (protocol.Action, error) {
	backend, ok := b[action.Type]
	if !ok {
		return nil, fmt.Errorf("unknown action type %s", action.Type)
	}

	return backend, nil
}

// grants maps "user:permission" to true.
type grants map[string]bool

func (g grants) Can(_ context.Context, permission string, user *models.User, _ protocol.AccessObject) (bool, error) {
	return g[user.ID+":"+permission], nil
}

var errAccessBackend = errors.New("access backend down")

type brokenAccess struct{}

func (brokenAccess) Can(context.Context, string, *models.User, protocol.AccessObject) (bool, error) {
	return false, errAccessBackend
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) action(name string, err error) protocol.Action {
	return protocol.ActionFunc(func(_ context.Context, _ *models.ExecutionContext, _ *slog.Logger) error {
		r.record(name)

		return err
	})
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, name)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (c *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	return nil
}

func (c *capturePublisher) Events() []eventbus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]eventbus.Event(nil), c.events...)
}

var (
	alice = &models.User{ID: "alice", Username: "alice"}
	bob   = &models.User{ID: "bob", Username: "bob"}

	aliceGrants = grants{
		"alice:submit":  true,
		"alice:approve": true,
		"alice:reject":  true,
		"alice:reopen":  true,
	}
)

// reviewTemplate is Draft -> Review -> Approved with a way back from each of the later states.
func reviewTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:           "review-tpl",
		Label:        "Review",
		InternalName: "review",
		States: []*models.State{
			{
				ID: "draft", Label: "Draft", Initial: true,
				Actions: []*models.StateAction{
					{ID: "draft-exit", Label: "Leave draft", Type: "exit", When: models.ActionOnExit, Enabled: true},
				},
			},
			{
				ID: "review", Label: "Review", Completion: 50,
				Actions: []*models.StateAction{
					{ID: "notify", Label: "Notify", Type: "notify", When: models.ActionOnEntry, Enabled: true, Order: 1},
				},
			},
			{
				ID: "approved", Label: "Approved", Final: true, Completion: 100,
				Actions: []*models.StateAction{
					{ID: "archive", Label: "Archive", Type: "archive", When: models.ActionOnEntry, Enabled: true},
				},
			},
		},
		Transitions: []*models.Transition{
			{ID: "submit", Label: "Submit", OriginStateID: "draft", DestinationStateID: "review", Permission: "submit"},
			{
				ID: "approve", Label: "Approve", OriginStateID: "review", DestinationStateID: "approved", Permission: "approve",
				Condition: &models.Condition{Expression: "{{ .workflow_instance_context.ok }}"},
			},
			{
				ID: "reject", Label: "Reject", OriginStateID: "review", DestinationStateID: "draft", Permission: "reject",
				Fields: []*models.TransitionField{{Name: "reason", Label: "Reason", Type: models.FieldString, Required: true}},
			},
			{ID: "reopen", Label: "Reopen", OriginStateID: "approved", DestinationStateID: "draft", Permission: "reopen"},
		},
	}
}

type harness struct {
	ctx         context.Context
	persistence *file.Persistence
	machine     *workflow.Machine
	def         *workflow.Definition
	document    *models.Document
	instance    *models.WorkflowInstance
	publisher   *capturePublisher
}

func newHarness(
	t *testing.T,
	template *models.WorkflowTemplate,
	actions binder,
	access protocol.AccessChecker,
	config workflow.Config,
) *harness {
	t.Helper()

	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	def, err := workflow.Compile(template, actions)
	require.NoError(t, err)
	require.NoError(t, p.TemplateRepository().Save(ctx, template))

	document := &models.Document{ID: "doc-1", Label: "Contract"}
	require.NoError(t, p.DocumentRepository().Save(ctx, document))

	instance := &models.WorkflowInstance{DocumentID: document.ID, TemplateID: template.ID}
	require.NoError(t, p.InstanceRepository().Create(ctx, instance))

	publisher := &capturePublisher{}
	machine := workflow.NewMachine(p, access, locking.NewLocal(), publisher, slog.Default(), config)

	return &harness{
		ctx:         ctx,
		persistence: p,
		machine:     machine,
		def:         def,
		document:    document,
		instance:    instance,
		publisher:   publisher,
	}
}

func (h *harness) apply(user *models.User, transitionID string) (*models.LogEntry, error) {
	return h.machine.ApplyTransition(h.ctx, h.def, h.instance.ID, workflow.TransitionRequest{
		TransitionID: transitionID,
		User:         user,
	})
}

func (h *harness) reload(t *testing.T) *models.WorkflowInstance {
	t.Helper()

	instance, err := h.persistence.InstanceRepository().GetByID(h.ctx, h.instance.ID)
	require.NoError(t, err)

	return instance
}

func (h *harness) currentState(t *testing.T) string {
	t.Helper()

	instance := h.reload(t)
	if instance.Unstarted() {
		return ""
	}

	return *instance.CurrentStateID
}

func (h *harness) errorNotes(t *testing.T) []string {
	t.Helper()

	entries, err := h.persistence.ErrorLogRepository().GetByDocument(h.ctx, h.document.ID)
	require.NoError(t, err)

	notes := make([]string, 0, len(entries))
	for _, entry := range entries {
		notes = append(notes, entry.Text)
	}

	return notes
}

func (h *harness) setContext(t *testing.T, key string, value any) {
	t.Helper()

	instance := h.reload(t)
	instance.Context[key] = value
	require.NoError(t, h.persistence.InstanceRepository().Update(h.ctx, instance))
}

func (h *harness) logEntries(t *testing.T) []*models.LogEntry {
	t.Helper()

	entries, err := h.persistence.InstanceRepository().LogEntries(h.ctx, h.instance.ID)
	require.NoError(t, err)

	return entries
}

func recordingActions(r *recorder) binder {
	return binder{
		"exit":    r.action("exit", nil),
		"notify":  r.action("notify", nil),
		"archive": r.action("archive", nil),
	}
}
