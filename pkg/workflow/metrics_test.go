package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTransitionOutcome(t *testing.T) {
	assert.Equal(t, outcomeSuccess, transitionOutcome(nil))
	assert.Equal(t, outcomeRejected, transitionOutcome(fmt.Errorf("wrapped: %w", ErrPermissionDenied)))
	assert.Equal(t, outcomeRejected, transitionOutcome(newTransitionError("ApplyTransition", "i", "t", ErrIllegalTransition)))
	assert.Equal(t, outcomeError, transitionOutcome(&ActionError{ActionID: "a", Err: errors.New("boom")}))
}

func TestRecordTransition(t *testing.T) {
	transitionsTotal.Reset()

	recordTransition("tpl", "submit", outcomeSuccess)
	recordTransition("tpl", "submit", outcomeSuccess)
	recordTransition("tpl", "submit", outcomeRejected)

	assert.InDelta(t, 2, testutil.ToFloat64(transitionsTotal.WithLabelValues("tpl", "submit", outcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues("tpl", "submit", outcomeRejected)), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(transitionsTotal))
}

func TestErrorTypeName(t *testing.T) {
	assert.Equal(t, "Error", ErrorTypeName(errors.New("plain")))
	assert.Equal(t, "PanicError", ErrorTypeName(fmt.Errorf("wrapped: %w", &PanicError{Value: 1})))
	assert.Equal(t, "ActionTimeoutError", ErrorTypeName(&ActionTimeoutError{Err: errors.New("late")}))
}
