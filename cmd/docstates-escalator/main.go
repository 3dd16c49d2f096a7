package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/docstates/pkg/cmd"
	"github.com/dukex/docstates/pkg/escalation"
	"github.com/dukex/docstates/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultMetricsPort = 9092
	shutdownTimeout    = 30 * time.Second
)

func main() {
	flags := append(cmd.EngineFlags(),
		&cli.StringFlag{
			Name:    "schedule",
			Usage:   "Cron spec of the escalation scan",
			Value:   escalation.DefaultSchedule,
			Sources: cli.EnvVars("ESCALATION_SCHEDULE"),
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port serving Prometheus metrics (0 disables it)",
			Value:   defaultMetricsPort,
			Sources: cli.EnvVars("METRICS_PORT"),
		},
		&cli.BoolFlag{
			Name:  "once",
			Usage: "Run a single escalation pass and exit",
		},
	)

	command := &cli.Command{
		Name:                  "docstates-escalator",
		Usage:                 "Fire the escalations of workflow instances parked in a state for too long",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action:                run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("docstates-escalator")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := cmd.NewEngine(ctx, logger, cmd.EngineConfigFromCommand(command, "docstates-escalator"))
	if err != nil {
		return err
	}

	defer func() {
		if err := engine.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close engine", "error", err)
		}
	}()

	scheduler, err := escalation.NewScheduler(engine.Service, command.String("schedule"), logger)
	if err != nil {
		return err
	}

	if command.Bool("once") {
		fired, err := scheduler.RunOnce(ctx)
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "Escalation pass finished", "fired", fired)

		return nil
	}

	var metrics *http.Server

	if port := command.Int("metrics-port"); port > 0 {
		metrics = startMetricsServer(ctx, port, logger)
	}

	err = scheduler.Start(ctx)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Escalator running", "schedule", command.String("schedule"))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	errs := []error{scheduler.Stop(shutdownCtx)}

	if metrics != nil {
		errs = append(errs, metrics.Shutdown(shutdownCtx))
	}

	return errors.Join(errs...)
}
