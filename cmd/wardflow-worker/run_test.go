package main

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workerArgs(extra ...string) []string {
	args := []string{
		"wardflow-worker",
		"--database-url", "memory://",
		"--event-bus", "gochannel",
		"--metrics-addr", "",
		"--log-level", "error",
	}

	return append(args, extra...)
}

func TestWorkerCommand_Defaults(t *testing.T) {
	command := newCommand()

	flags := map[string]bool{}
	for _, flag := range command.Flags {
		for _, name := range flag.Names() {
			flags[name] = true
		}
	}

	for _, name := range []string{"database-url", "event-bus", "concurrency", "recovery-schedule", "recovery-grace", "recovery-batch", "metrics-addr", "gateway-addr"} {
		assert.True(t, flags[name], name)
	}
}

func TestRunWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- newCommand().Run(ctx, workerArgs("--recovery-schedule", "@every 1h"))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestRunWorker_InvalidRecoverySchedule(t *testing.T) {
	err := newCommand().Run(context.Background(), workerArgs("--recovery-schedule", "every minute"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recovery schedule")
}

func TestRunWorker_UnsupportedEventBus(t *testing.T) {
	args := workerArgs()
	args[4] = "rabbitmq"

	err := newCommand().Run(context.Background(), args)

	assert.ErrorIs(t, err, cmd.ErrUnsupportedProvider)
}

func TestRunWorker_GatewayNeedsChangeFeed(t *testing.T) {
	err := newCommand().Run(context.Background(), workerArgs("--recovery-schedule", "@every 1h", "--gateway-addr", "127.0.0.1:0"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "change gateway needs a change feed")
}
