// Package main provides wardflow-watch, which keeps configured views of the entity store live
// in memory and logs how they change.
package main

import (
	"context"
	"os"

	"github.com/dukex/wardflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "wardflow-watch",
		EnableShellCompletion: true,
		Usage:                 "Follow live views of a tenant's entity store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "YAML file listing the views to open",
				Required: true,
				Sources:  cli.EnvVars("WATCH_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "change-feed",
				Usage:   "Where store changes are received from (gochannel, redis, kafka, postgres, websocket)",
				Value:   "websocket",
				Sources: cli.EnvVars("CHANGE_FEED"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Entity store URL used to seed the views (views start empty when unset)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the redis change feed",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-url",
				Usage:   "Base URL of the websocket change gateway",
				Sources: cli.EnvVars("GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-token",
				Usage:   "Bearer token for the change gateway",
				Sources: cli.EnvVars("GATEWAY_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: runWatch,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("wardflow-watch").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
