package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/docstates/pkg/cmd"
	"github.com/dukex/docstates/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "docstates",
		Usage:                 "Manage document workflow templates and drive workflow instances",
		EnableShellCompletion: true,
		Flags:                 cmd.EngineFlags(),
		Commands: []*cli.Command{
			templateCommand(),
			documentCommand(),
			launchCommand(),
			transitionCommand(),
			transitionsCommand(),
			historyCommand(),
			documentsCommand(),
			errorsCommand(),
			recoverCommand(),
			eventsCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withEngine runs fn against an engine built from the root flags and closes it afterwards.
func withEngine(ctx context.Context, command *cli.Command, fn func(ctx context.Context, engine *cmd.Engine) error) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("docstates")

	engine, err := cmd.NewEngine(ctx, logger, cmd.EngineConfigFromCommand(command, "docstates"))
	if err != nil {
		return err
	}

	defer func() {
		if err := engine.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close engine", "error", err)
		}
	}()

	return fn(ctx, engine)
}
