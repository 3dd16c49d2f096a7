package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/protocol"
)

// Evaluator computes which transitions a user may take. It never mutates state or takes locks.
type Evaluator struct {
	access protocol.AccessChecker
	logger *slog.Logger
}

func NewEvaluator(access protocol.AccessChecker, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		access: access,
		logger: logger.With("module", "evaluator"),
	}
}

// ValidTransitions returns, in template order, the transitions leaving the instance's effective state
// whose permission the user holds and whose condition is true. Conditions that fail to evaluate count as false.
func (e *Evaluator) ValidTransitions(
	ctx context.Context,
	def *Definition,
	instance *models.WorkflowInstance,
	document *models.Document,
	user *models.User,
) ([]*models.Transition, error) {
	state := def.EffectiveState(instance)
	if state == nil {
		return []*models.Transition{}, nil
	}

	var values map[string]any

	result := make([]*models.Transition, 0)

	for _, transition := range def.Template.OriginTransitions(state.ID) {
		allowed, err := e.access.Can(ctx, transition.Permission, user, instance)
		if err != nil {
			return nil, fmt.Errorf("access check for transition %s: %w", transition.ID, err)
		}

		if !allowed {
			continue
		}

		if values == nil {
			values = models.InstanceContext(document, def.Template, instance)
		}

		ok, err := def.TransitionCondition(transition.ID).Evaluate(ctx, values)
		if err != nil {
			e.logger.WarnContext(ctx, "Transition condition failed to evaluate",
				"template_id", def.Template.ID,
				"transition_id", transition.ID,
				"instance_id", instance.ID,
				"error", err)

			continue
		}

		if ok {
			result = append(result, transition)
		}
	}

	return result, nil
}

// Allowed reports whether user holds the transition's permission on the instance's document.
func (e *Evaluator) Allowed(
	ctx context.Context,
	transition *models.Transition,
	instance *models.WorkflowInstance,
	user *models.User,
) (bool, error) {
	return e.access.Can(ctx, transition.Permission, user, instance)
}
