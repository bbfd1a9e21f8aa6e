package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/otelhelper"
	"github.com/dukex/wardflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func runAPI(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("wardflow-api")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if command.Bool("tracing") {
		shutdown, err := otelhelper.Setup(ctx, "wardflow-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	logger.InfoContext(ctx, "Initializing Wardflow API")

	stack, feed, err := openStack(ctx, command, logger)
	if err != nil {
		return err
	}

	defer closeStack(ctx, stack, feed, logger)

	if provider := command.String("event-bus"); provider != "local" {
		eventBus, err := cmd.NewEventBus(provider, "wardflow-api", logger)
		if err != nil {
			return err
		}

		defer func() {
			if err := eventBus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		stack.Engine.UseDispatcher(workflow.NewBusDispatcher(eventBus))
	}

	if addr := command.String("gateway-addr"); addr != "" {
		if feed.Transport == nil {
			return fmt.Errorf("the change gateway needs a change feed, got %q", command.String("change-feed"))
		}

		gateway := cmd.NewGateway(addr, command.String("gateway-token"), feed.Transport, logger)
		gateway.Start(ctx)

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			_ = gateway.Shutdown(shutdownCtx)
		}()
	}

	api := NewAPI(logger, stack)

	go func() {
		<-ctx.Done()
		_ = api.Shutdown()
	}()

	err = api.Start(command.Int("port"))
	if err != nil {
		return fmt.Errorf("api server failed: %w", err)
	}

	if dispatcher, ok := stack.Engine.Dispatcher().(*workflow.LocalDispatcher); ok {
		dispatcher.Wait()
	}

	return nil
}

func openStack(ctx context.Context, command *cli.Command, logger *slog.Logger) (*cmd.Stack, *cmd.ChangeFeed, error) {
	store, feed, err := cmd.OpenStore(ctx, command.String("database-url"), cmd.ChangeFeedConfig{
		Kind:        command.String("change-feed"),
		DatabaseURL: command.String("database-url"),
		RedisURL:    command.String("redis-url"),
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return cmd.NewStack(store, command.String("functions-url"), command.String("functions-token"), logger), feed, nil
}

func closeStack(ctx context.Context, stack *cmd.Stack, feed *cmd.ChangeFeed, logger *slog.Logger) {
	err := stack.Store.Close(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}

	err = feed.Close()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to close change feed", "error", err)
	}
}
