// Package escalation periodically fires the escalations of instances parked in a state for too long.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 1m"

var ErrAlreadyStarted = errors.New("escalation scheduler already started")

var escalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docstates_escalations_total",
	Help: "Escalation attempts by outcome.",
}, []string{"outcome"})

// Escalator is the part of the workflow service the scheduler drives.
type Escalator interface {
	EscalationCandidates(ctx context.Context) ([]*models.WorkflowInstance, error)
	Escalate(ctx context.Context, instanceID string, now time.Time) (*models.LogEntry, error)
}

type Option func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

type Scheduler struct {
	escalator Escalator
	schedule  string
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewScheduler(escalator Escalator, schedule string, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid escalation schedule '%s': %w", schedule, err)
	}

	s := &Scheduler{
		escalator: escalator,
		schedule:  schedule,
		logger:    logger.With("module", "escalation_scheduler"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start runs RunOnce on the schedule until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.schedule, func() {
		_, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Escalation run failed", "error", err)
		}
	})
	if err != nil {
		s.cron = nil
		s.cancel()

		return fmt.Errorf("failed to schedule escalations: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Escalation scheduler started", "schedule", s.schedule)

	return nil
}

// Stop halts the schedule and waits for a running pass to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	s.cancel()
	stopped := s.cron.Stop()
	s.cron = nil

	select {
	case <-stopped.Done():
		s.logger.InfoContext(ctx, "Escalation scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce escalates every candidate instance once and returns how many transitions fired.
// A failing instance does not stop the pass.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	candidates, err := s.escalator.EscalationCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list escalation candidates: %w", err)
	}

	now := s.now().UTC()
	fired := 0

	for _, instance := range candidates {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}

		entry, err := s.escalator.Escalate(ctx, instance.ID, now)
		if err != nil {
			escalationsTotal.WithLabelValues("error").Inc()
			s.logger.WarnContext(ctx, "Failed to escalate workflow instance",
				"instance_id", instance.ID,
				"document_id", instance.DocumentID,
				"error", err)

			continue
		}

		if entry == nil {
			continue
		}

		fired++

		escalationsTotal.WithLabelValues("fired").Inc()
		s.logger.InfoContext(ctx, "Workflow instance escalated",
			"instance_id", instance.ID,
			"transition_id", entry.TransitionID)
	}

	s.logger.DebugContext(ctx, "Escalation pass finished", "candidates", len(candidates), "fired", fired)

	return fired, nil
}
