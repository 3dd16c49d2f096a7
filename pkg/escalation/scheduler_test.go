package escalation_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/docstates/pkg/escalation"
	"github.com/dukex/docstates/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEscalator struct {
	mock.Mock
}

func (m *mockEscalator) EscalationCandidates(ctx context.Context) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx)

	instances, _ := args.Get(0).([]*models.WorkflowInstance)

	return instances, args.Error(1)
}

func (m *mockEscalator) Escalate(ctx context.Context, instanceID string, now time.Time) (*models.LogEntry, error) {
	args := m.Called(ctx, instanceID, now)

	entry, _ := args.Get(0).(*models.LogEntry)

	return entry, args.Error(1)
}

var errBackend = errors.New("backend unavailable")

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := escalation.NewScheduler(&mockEscalator{}, "every tuesday", slog.Default())
	require.Error(t, err)
}

func TestScheduler_RunOnce(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	escalator := &mockEscalator{}

	escalator.On("EscalationCandidates", mock.Anything).Return([]*models.WorkflowInstance{
		{ID: "due"}, {ID: "waiting"}, {ID: "broken"},
	}, nil)
	escalator.On("Escalate", mock.Anything, "due", now).Return(&models.LogEntry{ID: "e1", TransitionID: "expire"}, nil)
	escalator.On("Escalate", mock.Anything, "waiting", now).Return(nil, nil)
	escalator.On("Escalate", mock.Anything, "broken", now).Return(nil, errBackend)

	scheduler, err := escalation.NewScheduler(escalator, "", slog.Default(),
		escalation.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	fired, err := scheduler.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	escalator.AssertExpectations(t)
}

func TestScheduler_RunOnceCandidateFailure(t *testing.T) {
	escalator := &mockEscalator{}
	escalator.On("EscalationCandidates", mock.Anything).Return(nil, errBackend)

	scheduler, err := escalation.NewScheduler(escalator, "", slog.Default())
	require.NoError(t, err)

	_, err = scheduler.RunOnce(t.Context())
	require.ErrorIs(t, err, errBackend)
}

type countingEscalator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingEscalator) EscalationCandidates(context.Context) ([]*models.WorkflowInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	return nil, nil
}

func (*countingEscalator) Escalate(context.Context, string, time.Time) (*models.LogEntry, error) {
	return nil, nil //nolint:nilnil // never called
}

func (c *countingEscalator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func TestScheduler_StartStop(t *testing.T) {
	escalator := &countingEscalator{}

	scheduler, err := escalation.NewScheduler(escalator, "@every 1s", slog.Default())
	require.NoError(t, err)

	require.NoError(t, scheduler.Start(t.Context()))
	require.ErrorIs(t, scheduler.Start(t.Context()), escalation.ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return escalator.Calls() > 0 }, 5*time.Second, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, scheduler.Stop(ctx))
	require.NoError(t, scheduler.Stop(ctx))
}
