package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dukex/docstates/pkg/eventbus"
	"github.com/dukex/docstates/pkg/locking"
	"github.com/dukex/docstates/pkg/otelhelper"
	"github.com/dukex/docstates/pkg/persistence"
	"github.com/dukex/docstates/pkg/services"
	"github.com/dukex/docstates/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

type EngineConfig struct {
	ServiceName   string
	DatabaseURL   string
	LockURL       string
	EventBus      string
	KafkaBrokers  string
	ACLFile       string
	Debug         bool
	ActionTimeout time.Duration
	// Tracing installs the OTLP exporter, configured by the standard OTEL_* variables.
	Tracing bool
}

// Engine is everything a command needs to drive workflows.
type Engine struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Service     *services.Workflow

	locker         locking.Locker
	shutdownTracer func(context.Context) error
}

func NewEngine(ctx context.Context, logger *slog.Logger, config EngineConfig) (*Engine, error) {
	engine := &Engine{}

	tracer := otelhelper.NoopTracer()

	if config.Tracing {
		var (
			otelTracer trace.Tracer
			err        error
		)

		otelTracer, engine.shutdownTracer, err = otelhelper.NewTracer(ctx, config.ServiceName)
		if err != nil {
			return nil, err
		}

		tracer = otelTracer
	}

	p, err := NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, errors.Join(err, engine.Close(ctx))
	}

	engine.Persistence = p

	locker, err := NewLocker(ctx, logger, config.LockURL, p)
	if err != nil {
		return nil, errors.Join(err, engine.Close(ctx))
	}

	engine.locker = locker

	bus, err := NewEventBus(config.EventBus, config.KafkaBrokers, config.ServiceName, logger)
	if err != nil {
		return nil, errors.Join(err, engine.Close(ctx))
	}

	engine.EventBus = bus

	accessChecker, err := NewAccessChecker(config.ACLFile)
	if err != nil {
		return nil, errors.Join(err, engine.Close(ctx))
	}

	machine := workflow.NewMachine(p, accessChecker, locker, bus, logger, workflow.Config{
		Debug:         config.Debug,
		ActionTimeout: config.ActionTimeout,
	}, workflow.WithTracer(tracer))

	engine.Service = services.NewWorkflow(p, NewRegistry(logger), machine, accessChecker, logger)

	return engine, nil
}

// Close releases everything NewEngine opened.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.EventBus != nil {
		errs = append(errs, e.EventBus.Close())
	}

	if closer, ok := e.locker.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	if e.Persistence != nil {
		errs = append(errs, e.Persistence.Close(ctx))
	}

	if e.shutdownTracer != nil {
		errs = append(errs, e.shutdownTracer(ctx))
	}

	return errors.Join(errs...)
}
