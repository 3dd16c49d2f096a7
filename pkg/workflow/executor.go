package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/dukex/docstates/pkg/eventbus"
	"github.com/dukex/docstates/pkg/events"
	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/otelhelper"
	"github.com/dukex/docstates/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrorLogDomain tags the error notes written for failed state actions.
const ErrorLogDomain = "document_states"

var ErrActionNotBound = errors.New("action has no bound backend")

// ActionExecutor runs the actions of one phase of a state, stopping at the first failure.
type ActionExecutor struct {
	errorLog  protocol.ErrorLog
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	config    Config
}

func NewActionExecutor(
	errorLog protocol.ErrorLog,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	config Config,
) *ActionExecutor {
	if publisher == nil {
		publisher = eventbus.Discard
	}

	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &ActionExecutor{
		errorLog:  errorLog,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger.With("module", "action_executor"),
		config:    config,
	}
}

// ExecutePhase runs the enabled actions of state for phase in order.
//
// A failing action leaves a note in the document's error log and ends the phase. The failure is
// returned as an *ActionError only in debug mode. Every successful action clears the document's notes.
// logEntry is nil for exit actions and when an instance starts.
func (x *ActionExecutor) ExecutePhase(
	ctx context.Context,
	phase models.ActionWhen,
	def *Definition,
	state *models.State,
	instance *models.WorkflowInstance,
	document *models.Document,
	logEntry *models.LogEntry,
) error {
	var actions []*models.StateAction
	if phase == models.ActionOnExit {
		actions = state.ExitActions()
	} else {
		actions = state.EntryActions()
	}

	if len(actions) == 0 {
		return nil
	}

	base := models.InstanceContext(document, def.Template, instance)
	base["log_entry"] = logEntryValues(logEntry)

	for _, action := range actions {
		values := make(map[string]any, len(base)+1)
		for key, value := range base {
			values[key] = value
		}

		values["action"] = map[string]any{
			"id":    action.ID,
			"label": action.Label,
			"type":  action.Type,
			"when":  string(action.When),
		}

		execCtx := &models.ExecutionContext{
			Document: document,
			Template: def.Template,
			Instance: instance,
			State:    state,
			Action:   action,
			LogEntry: logEntry,
			Values:   values,
		}

		skipped, err := x.executeAction(ctx, def, execCtx)
		if skipped {
			continue
		}

		if err != nil {
			x.fail(ctx, execCtx, err)

			if x.config.Debug {
				return &ActionError{ActionID: action.ID, ActionType: action.Type, Phase: phase, Err: err}
			}

			return nil
		}

		if clearErr := x.errorLog.Clear(ctx, instance.DocumentID, ErrorLogDomain); clearErr != nil {
			x.logger.WarnContext(ctx, "Failed to clear error log", "document_id", instance.DocumentID, "error", clearErr)
		}
	}

	return nil
}

func (x *ActionExecutor) executeAction(ctx context.Context, def *Definition, execCtx *models.ExecutionContext) (bool, error) {
	action := execCtx.Action

	ctx, span := otelhelper.StartSpan(ctx, x.tracer, "workflow.action",
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, action.Type),
		attribute.String(otelhelper.ActionPhaseKey, string(action.When)),
		attribute.String(otelhelper.StateIDKey, execCtx.State.ID),
		attribute.String(otelhelper.InstanceIDKey, execCtx.Instance.ID),
	)
	defer span.End()

	ok, err := def.ActionCondition(action.ID).Evaluate(ctx, execCtx.Values)
	if err != nil {
		err = fmt.Errorf("condition of action %s: %w", action.ID, err)
		otelhelper.SetError(span, err)
		actionExecutionsTotal.WithLabelValues(action.Type, string(action.When), outcomeError).Inc()

		return false, err
	}

	if !ok {
		otelhelper.SetOK(span, "condition not met")
		actionExecutionsTotal.WithLabelValues(action.Type, string(action.When), outcomeSkipped).Inc()

		return true, nil
	}

	backend, bound := def.Action(action.ID)
	if !bound {
		otelhelper.SetError(span, ErrActionNotBound)

		return false, fmt.Errorf("%w: %s", ErrActionNotBound, action.ID)
	}

	logger := x.logger.With(
		"action_id", action.ID,
		"action_type", action.Type,
		"instance_id", execCtx.Instance.ID,
	)

	start := time.Now()
	err = x.run(ctx, backend, execCtx, logger)
	actionDuration.WithLabelValues(action.Type, string(action.When)).Observe(time.Since(start).Seconds())

	if err != nil {
		otelhelper.SetError(span, err)
		actionExecutionsTotal.WithLabelValues(action.Type, string(action.When), outcomeError).Inc()

		return false, err
	}

	otelhelper.SetOK(span, "action executed")
	actionExecutionsTotal.WithLabelValues(action.Type, string(action.When), outcomeSuccess).Inc()

	return false, nil
}

func (x *ActionExecutor) run(
	ctx context.Context,
	backend protocol.Action,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) error {
	if x.config.ActionTimeout <= 0 {
		return safeExecute(ctx, backend, execCtx, logger)
	}

	ctx, cancel := context.WithTimeout(ctx, x.config.ActionTimeout)
	defer cancel()

	// An action outliving its deadline only ever writes to its own copy.
	detached := execCtx.Detach()
	done := make(chan error, 1)

	go func() {
		done <- safeExecute(ctx, backend, detached, logger)
	}()

	var err error

	select {
	case err = <-done:
		execCtx.Merge(detached)
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ActionTimeoutError{Err: err}
	}

	return err
}

func safeExecute(
	ctx context.Context,
	backend protocol.Action,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered}
		}
	}()

	return backend.Execute(ctx, execCtx, logger)
}

func (x *ActionExecutor) fail(ctx context.Context, execCtx *models.ExecutionContext, err error) {
	action := execCtx.Action
	instance := execCtx.Instance

	x.logger.ErrorContext(ctx, "State action failed",
		"action_id", action.ID,
		"action_type", action.Type,
		"phase", action.When,
		"state_id", execCtx.State.ID,
		"instance_id", instance.ID,
		"error", err)

	note := fmt.Sprintf("%s; %s", ErrorTypeName(err), err.Error())
	if logErr := x.errorLog.Create(ctx, instance.DocumentID, ErrorLogDomain, note); logErr != nil {
		x.logger.ErrorContext(ctx, "Failed to write error log", "document_id", instance.DocumentID, "error", logErr)
	}

	event := events.ActionFailed{
		BaseEvent:  events.NewBaseEvent(events.ActionFailedEvent, instance),
		StateID:    execCtx.State.ID,
		ActionID:   action.ID,
		ActionType: action.Type,
		Phase:      action.When,
		Error:      err.Error(),
	}

	if pubErr := x.publisher.Publish(ctx, instance.DocumentID, event); pubErr != nil {
		x.logger.WarnContext(ctx, "Failed to publish action failure", "error", pubErr)
	}
}

// ErrorTypeName names the most specific error type in err's chain, skipping the generic
// wrappers of the errors and fmt packages.
func ErrorTypeName(err error) string {
	for current := err; current != nil; current = errors.Unwrap(current) {
		errType := reflect.TypeOf(current)
		for errType.Kind() == reflect.Pointer {
			errType = errType.Elem()
		}

		switch errType.PkgPath() {
		case "errors", "fmt":
			continue
		}

		if errType.Name() != "" {
			return errType.Name()
		}
	}

	return "Error"
}

func logEntryValues(entry *models.LogEntry) map[string]any {
	if entry == nil {
		return nil
	}

	return map[string]any{
		"id":            entry.ID,
		"transition_id": entry.TransitionID,
		"user_id":       entry.UserID,
		"datetime":      entry.Datetime,
		"comment":       entry.Comment,
		"extra_data":    entry.ExtraData,
	}
}
