package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeRejected = "rejected"
	outcomeSkipped  = "skipped"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstates_transitions_total",
		Help: "Workflow transitions by template, transition and outcome (success, rejected or error)",
	}, []string{"template", "transition", "outcome"})

	actionExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstates_action_executions_total",
		Help: "State action executions by action type, phase and outcome (success, skipped or error)",
	}, []string{"action_type", "phase", "outcome"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docstates_action_duration_seconds",
		Help:    "Duration of state action executions by action type and phase",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"action_type", "phase"})
)

func recordTransition(templateID, transitionID, outcome string) {
	transitionsTotal.WithLabelValues(templateID, transitionID, outcome).Inc()
}

// transitionOutcome classifies err: precondition failures are "rejected", anything else is an "error".
func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case IsIllegalTransition(err), IsPermissionDenied(err), IsConditionNotMet(err), IsInvalidExtraData(err):
		return outcomeRejected
	default:
		return outcomeError
	}
}
