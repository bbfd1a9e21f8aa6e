package main

import (
	"context"
	"os"

	"github.com/dukex/wardflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "wardflow-api",
		Usage:                 "Ingest workflow events and manage workflow rules",
		EnableShellCompletion: true,
		Flags:                 append(storeFlags(), serverFlags()...),
		Action:                runAPI,
		Commands: []*cli.Command{
			importRulesCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("wardflow-api").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Entity store URL (memory://, file://<dir>, postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "change-feed",
			Usage:   "Where store changes are published (none, gochannel, redis, kafka, postgres)",
			Value:   "none",
			Sources: cli.EnvVars("CHANGE_FEED"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis change feed",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "How recorded events reach the rule engine: local (this process) or kafka",
			Value:   "local",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "functions-url",
			Usage:   "Base URL of the server-side functions called by invoke_external_function",
			Sources: cli.EnvVars("FUNCTIONS_URL"),
		},
		&cli.StringFlag{
			Name:    "functions-token",
			Usage:   "Bearer token for the functions endpoint",
			Sources: cli.EnvVars("FUNCTIONS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "gateway-addr",
			Usage:   "Serve the websocket change gateway on this address (disabled when empty)",
			Sources: cli.EnvVars("GATEWAY_ADDR"),
		},
		&cli.StringFlag{
			Name:    "gateway-token",
			Usage:   "Bearer token required by the change gateway",
			Sources: cli.EnvVars("GATEWAY_TOKEN"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP (configured by the OTEL_* variables)",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}
