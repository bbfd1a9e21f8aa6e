// Package main provides the Wardflow worker, which runs the rule engine for events recorded
// by the API and re-dispatches events left unprocessed.
package main

import (
	"context"
	"os"
	"time"

	"github.com/dukex/wardflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("wardflow-worker").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "wardflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Process recorded workflow events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Entity store URL (memory://, file://<dir>, postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Events processed at the same time",
				Value:   8,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.StringFlag{
				Name:    "recovery-schedule",
				Usage:   "Cron expression for the unprocessed event sweep",
				Value:   "@every 1m",
				Sources: cli.EnvVars("RECOVERY_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "recovery-grace",
				Usage:   "Age an unprocessed event must reach before it is re-dispatched",
				Value:   2 * time.Minute,
				Sources: cli.EnvVars("RECOVERY_GRACE"),
			},
			&cli.IntFlag{
				Name:    "recovery-batch",
				Usage:   "Events re-dispatched per sweep",
				Value:   100,
				Sources: cli.EnvVars("RECOVERY_BATCH"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Address serving /metrics and /healthz (disabled when empty)",
				Value:   ":9090",
				Sources: cli.EnvVars("METRICS_ADDR"),
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
				Name:    "gateway-addr",
				Usage:   "Serve the websocket change gateway on this address (disabled when empty)",
				Sources: cli.EnvVars("GATEWAY_ADDR"),
			},
			&cli.StringFlag{
				Name:    "gateway-token",
				Usage:   "Bearer token required by the change gateway",
				Sources: cli.EnvVars("GATEWAY_TOKEN"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP (configured by the OTEL_* variables)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Action: runWorker,
	}
}
