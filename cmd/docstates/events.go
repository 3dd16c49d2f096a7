package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dukex/docstates/pkg/cmd"
	"github.com/dukex/docstates/pkg/eventbus"
	"github.com/dukex/docstates/pkg/events"
	"github.com/dukex/docstates/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print workflow events as they are published",
		Description: "Events published by other processes only arrive over a brokered bus (--event-bus kafka). " +
			"Every running tail reads the topic in its own consumer group.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "group", Value: "events", Usage: "Consumer group suffix of this tail"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("docstates")

			provider := command.String("event-bus")
			if provider == "" || provider == "gochannel" {
				logger.WarnContext(ctx, "The gochannel event bus only carries events published by this process")
			}

			bus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), command.String("group"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = tailEvents(ctx, bus, command.Root().Writer)
			if err != nil {
				return err
			}

			<-ctx.Done()

			return nil
		},
	}
}

// tailEvents writes one line per workflow event received by bus until ctx ends.
func tailEvents(ctx context.Context, bus eventbus.EventSubscriber, out io.Writer) error {
	var mu sync.Mutex

	printEvent := func(_ context.Context, event any) error {
		line := describeEvent(event)

		mu.Lock()
		defer mu.Unlock()

		_, err := fmt.Fprintln(out, line)

		return err
	}

	for _, eventType := range []events.EventType{
		events.WorkflowLaunchedEvent,
		events.TransitionExecutedEvent,
		events.ActionFailedEvent,
	} {
		if err := bus.Handle(eventType, printEvent); err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}

func describeEvent(event any) string {
	switch e := event.(type) {
	case *events.WorkflowLaunched:
		return fmt.Sprintf("%s %s document=%s instance=%s state=%s",
			e.Timestamp.Format(time.RFC3339), e.Type, e.DocumentID, e.InstanceID, e.StateID)
	case *events.TransitionExecuted:
		return fmt.Sprintf("%s %s document=%s instance=%s transition=%s %s->%s user=%s escalated=%t",
			e.Timestamp.Format(time.RFC3339), e.Type, e.DocumentID, e.InstanceID, e.TransitionID,
			e.OriginStateID, e.DestinationStateID, e.UserID, e.Escalated)
	case *events.ActionFailed:
		return fmt.Sprintf("%s %s document=%s instance=%s state=%s action=%s (%s, %s) error=%q",
			e.Timestamp.Format(time.RFC3339), e.Type, e.DocumentID, e.InstanceID, e.StateID,
			e.ActionID, e.ActionType, e.Phase, e.Error)
	default:
		return fmt.Sprintf("%v", event)
	}
}
