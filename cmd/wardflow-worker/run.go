package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/otelhelper"
	"github.com/dukex/wardflow/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func runWorker(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("wardflow-worker").With("worker_id", workerID)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if command.Bool("tracing") {
		shutdown, err := otelhelper.Setup(ctx, "wardflow-worker")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	logger.InfoContext(ctx, "Initializing Wardflow Worker")

	store, feed, err := cmd.OpenStore(ctx, command.String("database-url"), cmd.ChangeFeedConfig{
		Kind:        command.String("change-feed"),
		DatabaseURL: command.String("database-url"),
		RedisURL:    command.String("redis-url"),
	}, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}

		if err := feed.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close change feed", "error", err)
		}
	}()

	stack := cmd.NewStack(store, command.String("functions-url"), command.String("functions-token"), logger)

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "wardflow-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	dispatcher := workflow.NewLocalDispatcher(stack.Engine, int64(command.Int("concurrency")), logger)
	stack.Engine.UseDispatcher(dispatcher)

	worker := workflow.NewWorker(workerID, eventBus, stack.Audit, dispatcher, logger)

	err = worker.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	recoverer := workflow.NewRecoverer(stack.Audit, dispatcher,
		command.Duration("recovery-grace"), command.Int("recovery-batch"), logger)

	err = recoverer.Schedule(ctx, command.String("recovery-schedule"))
	if err != nil {
		return err
	}

	defer recoverer.Stop()

	if addr := command.String("metrics-addr"); addr != "" {
		server := metrics.NewServer(addr)

		go func() {
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
			}
		}()

		defer func() {
			_ = server.Close()
		}()
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

	<-ctx.Done()

	logger.Info("Shutting down worker")

	dispatcher.Wait()

	return nil
}
