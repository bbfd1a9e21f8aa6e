package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/rules"
	cli "github.com/urfave/cli/v3"
)

func importRulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-rules",
		Usage: "Create or replace workflow rules from a YAML file",
		Flags: append(storeFlags(),
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "YAML file with a top-level rules list",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "tenant",
				Usage:   "Tenant for rules that do not name one",
				Sources: cli.EnvVars("TENANT_ID"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("import-rules")

			file, err := os.Open(command.String("file"))
			if err != nil {
				return fmt.Errorf("failed to open rules file: %w", err)
			}

			defer func() {
				_ = file.Close()
			}()

			loaded, err := rules.LoadYAML(file, command.String("tenant"))
			if err != nil {
				return err
			}

			stack, feed, err := openStack(ctx, command, logger)
			if err != nil {
				return err
			}

			defer closeStack(ctx, stack, feed, logger)

			imported, err := stack.Rules.Import(ctx, loaded)
			if err != nil {
				return fmt.Errorf("imported %d of %d rules: %w", imported, len(loaded), err)
			}

			logger.InfoContext(ctx, "Rules imported", "count", imported, "file", command.String("file"))

			return nil
		},
	}
}
