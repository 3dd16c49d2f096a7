package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dukex/docstates/pkg/cmd"
	"github.com/dukex/docstates/pkg/models"
	cli "github.com/urfave/cli/v3"
)

var userFlag = &cli.StringFlag{
	Name:    "user",
	Aliases: []string{"u"},
	Usage:   "ID of the acting user",
	Sources: cli.EnvVars("DOCSTATES_USER"),
}

func documentCommand() *cli.Command {
	return &cli.Command{
		Name:      "document",
		Usage:     "Register a document, launching auto-launch templates bound to its type",
		ArgsUsage: "DOCUMENT_ID LABEL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "Document type ID"},
			&cli.BoolFlag{Name: "no-auto-launch", Usage: "Do not launch auto-launch templates"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "DOCUMENT_ID", "LABEL")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				document := &models.Document{
					ID:             args[0],
					Label:          args[1],
					DocumentTypeID: command.String("type"),
					CreatedAt:      time.Now().UTC(),
				}

				err := engine.Persistence.DocumentRepository().Save(ctx, document)
				if err != nil {
					return err
				}

				if command.Bool("no-auto-launch") {
					return nil
				}

				instances, err := engine.Service.AutoLaunch(ctx, document.ID)
				if err != nil {
					return err
				}

				return printInstances(command, instances)
			})
		},
	}
}

func launchCommand() *cli.Command {
	return &cli.Command{
		Name:      "launch",
		Usage:     "Start a workflow template on a document",
		ArgsUsage: "DOCUMENT_ID TEMPLATE_ID",
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "DOCUMENT_ID", "TEMPLATE_ID")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				instance, err := engine.Service.Launch(ctx, args[0], args[1])
				if instance != nil {
					if printErr := printInstances(command, []*models.WorkflowInstance{instance}); printErr != nil {
						return printErr
					}
				}

				return err
			})
		},
	}
}

func transitionCommand() *cli.Command {
	return &cli.Command{
		Name:      "transition",
		Usage:     "Apply a transition to a workflow instance",
		ArgsUsage: "INSTANCE_ID TRANSITION_ID",
		Flags: []cli.Flag{
			userFlag,
			&cli.StringFlag{Name: "comment", Aliases: []string{"m"}, Usage: "Comment stored in the log entry"},
			&cli.StringSliceFlag{Name: "data", Aliases: []string{"d"}, Usage: "Extra data as key=value, repeatable"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "INSTANCE_ID", "TRANSITION_ID")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				var fields []*models.TransitionField

				instance, err := engine.Persistence.InstanceRepository().GetByID(ctx, args[0])
				if err != nil {
					return err
				}

				if transition, err := engine.Service.Transition(ctx, instance.TemplateID, args[1]); err == nil {
					fields = transition.Fields
				}

				extraData, err := parseExtraData(fields, command.StringSlice("data"))
				if err != nil {
					return err
				}

				entry, err := engine.Service.DoTransition(ctx, args[0], args[1],
					userFromFlag(command), command.String("comment"), extraData)
				if entry != nil {
					if printErr := printLog(command, []*models.LogEntry{entry}); printErr != nil {
						return printErr
					}
				}

				return err
			})
		},
	}
}

func transitionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transitions",
		Usage:     "List the transitions a user may apply to an instance now",
		ArgsUsage: "INSTANCE_ID",
		Flags:     []cli.Flag{userFlag},
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "INSTANCE_ID")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				transitions, err := engine.Service.ValidTransitions(ctx, args[0], userFromFlag(command))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tLABEL\tTO\tFIELDS")

				for _, transition := range transitions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
						transition.ID, transition.Label, transition.DestinationStateID, len(transition.Fields))
				}

				return w.Flush()
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show the current state and transition log of an instance",
		ArgsUsage: "INSTANCE_ID",
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "INSTANCE_ID")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				state, err := engine.Service.CurrentState(ctx, args[0])
				if err != nil {
					return err
				}

				current := "(not started)"
				if state != nil {
					current = state.Label
				}

				fmt.Fprintf(command.Root().Writer, "Current state: %s\n\n", current)

				entries, err := engine.Service.LogEntries(ctx, args[0])
				if err != nil {
					return err
				}

				return printLog(command, entries)
			})
		},
	}
}

func documentsCommand() *cli.Command {
	return &cli.Command{
		Name:      "documents",
		Usage:     "List documents whose instance of a template sits in a state",
		ArgsUsage: "TEMPLATE_ID STATE_ID",
		Flags: []cli.Flag{
			userFlag,
			&cli.StringFlag{Name: "permission", Usage: "Only documents on which the user holds this permission"},
			&cli.BoolFlag{Name: "count", Usage: "Print only the number of documents"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "TEMPLATE_ID", "STATE_ID")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				if command.Bool("count") {
					count, err := engine.Service.DocumentCount(ctx, args[0], args[1],
						command.String("permission"), userFromFlag(command))
					if err != nil {
						return err
					}

					fmt.Fprintln(command.Root().Writer, count)

					return nil
				}

				documents, err := engine.Service.Documents(ctx, args[0], args[1],
					command.String("permission"), userFromFlag(command))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tLABEL\tTYPE")

				for _, document := range documents {
					fmt.Fprintf(w, "%s\t%s\t%s\n", document.ID, document.Label, document.DocumentTypeID)
				}

				return w.Flush()
			})
		},
	}
}

func errorsCommand() *cli.Command {
	return &cli.Command{
		Name:      "errors",
		Usage:     "Show the error notes recorded on a document",
		ArgsUsage: "DOCUMENT_ID",
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "DOCUMENT_ID")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				entries, err := engine.Service.ErrorLog(ctx, args[0])
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CREATED\tDOMAIN\tTEXT")

				for _, entry := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\n", entry.CreatedAt.Format(time.RFC3339), entry.Domain, entry.Text)
				}

				return w.Flush()
			})
		},
	}
}

func recoverCommand() *cli.Command {
	return &cli.Command{
		Name:      "recover",
		Usage:     "Point an instance back at the state its log ends in",
		ArgsUsage: "INSTANCE_ID",
		Action: func(ctx context.Context, command *cli.Command) error {
			args, err := requireArgs(command, "INSTANCE_ID")
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
				repaired, err := engine.Service.Recover(ctx, args[0])
				if err != nil {
					return err
				}

				if repaired {
					fmt.Fprintln(command.Root().Writer, "instance repaired")
				} else {
					fmt.Fprintln(command.Root().Writer, "instance consistent with its log")
				}

				return nil
			})
		},
	}
}

func printInstances(command *cli.Command, instances []*models.WorkflowInstance) error {
	w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tDOCUMENT\tTEMPLATE\tSTATE")

	for _, instance := range instances {
		state := "-"
		if !instance.Unstarted() {
			state = *instance.CurrentStateID
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", instance.ID, instance.DocumentID, instance.TemplateID, state)
	}

	return w.Flush()
}

func printLog(command *cli.Command, entries []*models.LogEntry) error {
	w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATETIME\tTRANSITION\tUSER\tCOMMENT")

	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			entry.Datetime.Format(time.RFC3339), entry.TransitionID, entry.UserID, entry.Comment)
	}

	return w.Flush()
}
