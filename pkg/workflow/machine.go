package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"time"

	"github.com/dukex/docstates/pkg/eventbus"
	"github.com/dukex/docstates/pkg/events"
	"github.com/dukex/docstates/pkg/locking"
	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/otelhelper"
	"github.com/dukex/docstates/pkg/persistence"
	"github.com/dukex/docstates/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	// Debug makes action failures propagate to the caller instead of only being written to the error log.
	Debug bool

	// ActionTimeout bounds each action run. Zero disables the bound.
	ActionTimeout time.Duration
}

// TransitionRequest asks the machine to move an instance along a transition.
type TransitionRequest struct {
	TransitionID string
	User         *models.User
	Comment      string
	ExtraData    map[string]any

	// System skips the permission check. Escalations use it.
	System bool
}

type MachineOption func(*Machine)

func WithTracer(tracer trace.Tracer) MachineOption {
	return func(m *Machine) {
		m.tracer = tracer
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// Machine applies transitions to workflow instances.
type Machine struct {
	persistence persistence.Persistence
	evaluator   *Evaluator
	executor    *ActionExecutor
	locker      locking.Locker
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

func NewMachine(
	p persistence.Persistence,
	access protocol.AccessChecker,
	locker locking.Locker,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config Config,
	opts ...MachineOption,
) *Machine {
	if publisher == nil {
		publisher = eventbus.Discard
	}

	m := &Machine{
		persistence: p,
		evaluator:   NewEvaluator(access, logger),
		locker:      locker,
		publisher:   publisher,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "machine"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.executor = NewActionExecutor(p.ErrorLogRepository(), publisher, m.tracer, logger, config)

	return m
}

func (m *Machine) Evaluator() *Evaluator {
	return m.evaluator
}

// ApplyTransition moves the instance along the requested transition and returns the new log entry.
//
// Preconditions are checked under the instance lock against a freshly loaded instance; a failed
// precondition changes nothing. Exit actions of the current state run first, then the log entry and
// the new state are committed together, then the destination's entry actions run with the entry.
// In debug mode an entry action failure is returned alongside the committed entry.
func (m *Machine) ApplyTransition(
	ctx context.Context,
	def *Definition,
	instanceID string,
	req TransitionRequest,
) (*models.LogEntry, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.transition",
		attribute.String(otelhelper.TemplateIDKey, def.Template.ID),
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.TransitionIDKey, req.TransitionID),
	)
	defer span.End()

	var entry *models.LogEntry

	err := m.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		var err error

		entry, err = m.applyTransition(ctx, def, instanceID, req)

		return err
	})

	recordTransition(def.Template.ID, req.TransitionID, transitionOutcome(err))

	if err != nil {
		otelhelper.SetError(span, err)

		var transitionErr *TransitionError
		if !errors.As(err, &transitionErr) {
			err = newTransitionError("ApplyTransition", instanceID, req.TransitionID, err)
		}

		return entry, err
	}

	otelhelper.SetOK(span, "transition applied")

	return entry, nil
}

func (m *Machine) applyTransition(
	ctx context.Context,
	def *Definition,
	instanceID string,
	req TransitionRequest,
) (*models.LogEntry, error) {
	instance, document, err := m.load(ctx, def, instanceID)
	if err != nil {
		return nil, err
	}

	transition, origin, err := m.checkPreconditions(ctx, def, instance, document, req)
	if err != nil {
		return nil, err
	}

	destination := def.Template.StateByID(transition.DestinationStateID)
	wasUnstarted := instance.Unstarted()

	if !wasUnstarted {
		err = m.executor.ExecutePhase(ctx, models.ActionOnExit, def, origin, instance, document, nil)
		if err != nil {
			return nil, err
		}
	}

	entryID, err := persistence.NewID()
	if err != nil {
		return nil, err
	}

	entry := &models.LogEntry{
		ID:           entryID,
		InstanceID:   instance.ID,
		TransitionID: transition.ID,
		UserID:       requestUserID(req),
		Datetime:     m.now().UTC(),
		Comment:      req.Comment,
		ExtraData:    req.ExtraData,
	}

	instance.SetCurrentState(destination.ID, entry.Datetime)

	err = m.persistence.InstanceRepository().CommitTransition(ctx, instance, entry)
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Transition applied",
		"instance_id", instance.ID,
		"document_id", instance.DocumentID,
		"transition_id", transition.ID,
		"origin_state_id", origin.ID,
		"destination_state_id", destination.ID,
		"user_id", entry.UserID)

	actionErr := m.runEntryActions(ctx, def, destination, instance, document, entry)

	event := events.TransitionExecuted{
		BaseEvent:          events.NewBaseEvent(events.TransitionExecutedEvent, instance),
		TransitionID:       transition.ID,
		DestinationStateID: destination.ID,
		LogEntryID:         entry.ID,
		UserID:             entry.UserID,
		Comment:            entry.Comment,
		Escalated:          req.System,
	}

	if !wasUnstarted {
		event.OriginStateID = origin.ID
	}

	m.publish(ctx, instance, event)

	if actionErr != nil {
		return entry, newTransitionError("ApplyTransition", instance.ID, transition.ID, actionErr)
	}

	return entry, nil
}

func (m *Machine) checkPreconditions(
	ctx context.Context,
	def *Definition,
	instance *models.WorkflowInstance,
	document *models.Document,
	req TransitionRequest,
) (*models.Transition, *models.State, error) {
	transition := def.Template.TransitionByID(req.TransitionID)
	if transition == nil {
		return nil, nil, fmt.Errorf("%w: transition %s is not part of template %s",
			ErrIllegalTransition, req.TransitionID, def.Template.ID)
	}

	current := def.EffectiveState(instance)
	if current == nil || transition.OriginStateID != current.ID {
		return nil, nil, fmt.Errorf("%w: transition %s does not leave the current state",
			ErrIllegalTransition, transition.ID)
	}

	if !req.System {
		if req.User == nil {
			return nil, nil, fmt.Errorf("%w: no user", ErrPermissionDenied)
		}

		allowed, err := m.evaluator.Allowed(ctx, transition, instance, req.User)
		if err != nil {
			return nil, nil, fmt.Errorf("access check failed: %w", err)
		}

		if !allowed {
			return nil, nil, fmt.Errorf("%w: user %s lacks %s", ErrPermissionDenied, req.User.ID, transition.Permission)
		}
	}

	ok, err := def.TransitionCondition(transition.ID).Evaluate(ctx, models.InstanceContext(document, def.Template, instance))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConditionNotMet, err)
	}

	if !ok {
		return nil, nil, ErrConditionNotMet
	}

	err = def.ValidateExtraData(transition.ID, req.ExtraData)
	if err != nil {
		return nil, nil, err
	}

	err = (&models.LogEntry{TransitionID: transition.ID, Comment: req.Comment}).Validate()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidComment, err)
	}

	return transition, current, nil
}

// Start moves an unstarted instance into the initial state and runs that state's entry actions.
// Starting an instance that already has a state does nothing.
func (m *Machine) Start(ctx context.Context, def *Definition, instanceID string) error {
	return m.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		instance, document, err := m.load(ctx, def, instanceID)
		if err != nil {
			return err
		}

		if !instance.Unstarted() {
			return nil
		}

		initial := def.Template.InitialState()
		instance.SetCurrentState(initial.ID, m.now().UTC())

		err = m.persistence.InstanceRepository().Update(ctx, instance)
		if err != nil {
			return newTransitionError("Start", instance.ID, "", err)
		}

		actionErr := m.runEntryActions(ctx, def, initial, instance, document, nil)

		m.publish(ctx, instance, events.WorkflowLaunched{
			BaseEvent: events.NewBaseEvent(events.WorkflowLaunchedEvent, instance),
			StateID:   initial.ID,
		})

		if actionErr != nil {
			return newTransitionError("Start", instance.ID, "", actionErr)
		}

		return nil
	})
}

// ReplayState derives the current state from an ordered log. An empty log yields the initial state.
func ReplayState(def *Definition, entries []*models.LogEntry) (*models.State, error) {
	state := def.Template.InitialState()

	for _, entry := range entries {
		transition := def.Template.TransitionByID(entry.TransitionID)
		if transition == nil {
			return nil, fmt.Errorf("%w: log entry %s references transition %s",
				ErrIllegalTransition, entry.ID, entry.TransitionID)
		}

		state = def.Template.StateByID(transition.DestinationStateID)
	}

	return state, nil
}

// Recover points the instance at the state its log ends in, if the two diverged.
// Instances without log entries are left alone. It reports whether a repair was made.
func (m *Machine) Recover(ctx context.Context, def *Definition, instanceID string) (bool, error) {
	repaired := false

	err := m.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		instance, _, err := m.load(ctx, def, instanceID)
		if err != nil {
			return err
		}

		entries, err := m.persistence.InstanceRepository().LogEntries(ctx, instanceID)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			return nil
		}

		state, err := ReplayState(def, entries)
		if err != nil {
			return err
		}

		if !instance.Unstarted() && *instance.CurrentStateID == state.ID {
			return nil
		}

		m.logger.WarnContext(ctx, "Repairing diverged instance state",
			"instance_id", instance.ID,
			"stored_state_id", instance.CurrentStateID,
			"replayed_state_id", state.ID)

		instance.SetCurrentState(state.ID, entries[len(entries)-1].Datetime)

		err = m.persistence.InstanceRepository().Update(ctx, instance)
		if err != nil {
			return err
		}

		repaired = true

		return nil
	})
	if err != nil {
		return false, newTransitionError("Recover", instanceID, "", err)
	}

	return repaired, nil
}

// runEntryActions executes the entry phase and persists any context the actions wrote.
func (m *Machine) runEntryActions(
	ctx context.Context,
	def *Definition,
	state *models.State,
	instance *models.WorkflowInstance,
	document *models.Document,
	entry *models.LogEntry,
) error {
	before := maps.Clone(instance.Context)

	actionErr := m.executor.ExecutePhase(ctx, models.ActionOnEntry, def, state, instance, document, entry)

	if !reflect.DeepEqual(before, instance.Context) {
		if err := m.persistence.InstanceRepository().Update(ctx, instance); err != nil {
			m.logger.ErrorContext(ctx, "Failed to persist instance context", "instance_id", instance.ID, "error", err)

			return errors.Join(actionErr, err)
		}
	}

	return actionErr
}

func (m *Machine) load(
	ctx context.Context,
	def *Definition,
	instanceID string,
) (*models.WorkflowInstance, *models.Document, error) {
	instance, err := m.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	if instance.TemplateID != def.Template.ID {
		return nil, nil, fmt.Errorf("%w: instance %s runs template %s, not %s",
			ErrInstanceTemplateMismatch, instance.ID, instance.TemplateID, def.Template.ID)
	}

	document, err := m.persistence.DocumentRepository().GetByID(ctx, instance.DocumentID)
	if err != nil {
		return nil, nil, err
	}

	return instance, document, nil
}

func (m *Machine) withInstanceLock(ctx context.Context, instanceID string, fn func(ctx context.Context) error) error {
	unlock, err := m.locker.Lock(ctx, locking.InstanceKey(instanceID))
	if err != nil {
		return fmt.Errorf("failed to lock workflow instance %s: %w", instanceID, err)
	}

	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.WarnContext(ctx, "Failed to release instance lock", "instance_id", instanceID, "error", err)
		}
	}()

	return fn(ctx)
}

func (m *Machine) publish(ctx context.Context, instance *models.WorkflowInstance, event eventbus.Event) {
	if err := m.publisher.Publish(ctx, instance.DocumentID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func requestUserID(req TransitionRequest) string {
	if req.User != nil {
		return req.User.ID
	}

	if req.System {
		return models.SystemUser.ID
	}

	return ""
}
