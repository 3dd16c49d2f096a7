package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dukex/docstates/pkg/cmd"
	"github.com/dukex/docstates/pkg/definition"
	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:    "template",
		Aliases: []string{"t"},
		Usage:   "Manage workflow templates",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Validate a YAML template definition and store it",
				ArgsUsage: "FILE",
				Action: func(ctx context.Context, command *cli.Command) error {
					args, err := requireArgs(command, "FILE")
					if err != nil {
						return err
					}

					template, err := definition.Load(args[0])
					if err != nil {
						return err
					}

					return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
						saved, err := engine.Service.SaveTemplate(ctx, template)
						if err != nil {
							return err
						}

						fmt.Fprintf(command.Root().Writer, "%s\t%s\n", saved.ID, saved.Label)

						return nil
					})
				},
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List stored templates",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
						templates, err := engine.Service.Templates(ctx)
						if err != nil {
							return err
						}

						w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
						fmt.Fprintln(w, "ID\tNAME\tLABEL\tSTATES\tAUTO LAUNCH")

						for _, template := range templates {
							fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n",
								template.ID, template.InternalName, template.Label, len(template.States), template.AutoLaunch)
						}

						return w.Flush()
					})
				},
			},
			{
				Name:      "diagram",
				Usage:     "Print the Graphviz DOT diagram of a stored template, or of a YAML file with --file",
				ArgsUsage: "[TEMPLATE_ID]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "YAML template definition"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withTemplate(ctx, command, func(template *models.WorkflowTemplate) error {
						_, err := fmt.Fprint(command.Root().Writer, workflow.Diagram(template))

						return err
					})
				},
			},
			{
				Name:      "hash",
				Usage:     "Print the content hash of a template and of each state",
				ArgsUsage: "[TEMPLATE_ID]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "YAML template definition"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withTemplate(ctx, command, func(template *models.WorkflowTemplate) error {
						hash, err := workflow.TemplateHash(template)
						if err != nil {
							return err
						}

						w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
						fmt.Fprintf(w, "template\t%s\t%s\n", template.Label, hash)

						for _, state := range template.States {
							stateHash, err := workflow.StateHash(state)
							if err != nil {
								return err
							}

							fmt.Fprintf(w, "state\t%s\t%s\n", state.Label, stateHash)
						}

						return w.Flush()
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a template without instances",
				ArgsUsage: "TEMPLATE_ID",
				Action: func(ctx context.Context, command *cli.Command) error {
					args, err := requireArgs(command, "TEMPLATE_ID")
					if err != nil {
						return err
					}

					return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
						return engine.Service.DeleteTemplate(ctx, args[0])
					})
				},
			},
		},
	}
}

// withTemplate loads the template from --file when given, otherwise from storage.
func withTemplate(ctx context.Context, command *cli.Command, fn func(*models.WorkflowTemplate) error) error {
	if path := command.String("file"); path != "" {
		template, err := definition.Load(path)
		if err != nil {
			return err
		}

		return fn(template)
	}

	args, err := requireArgs(command, "TEMPLATE_ID")
	if err != nil {
		return err
	}

	return withEngine(ctx, command, func(ctx context.Context, engine *cmd.Engine) error {
		def, err := engine.Service.Definition(ctx, args[0])
		if err != nil {
			return err
		}

		return fn(def.Template)
	})
}
