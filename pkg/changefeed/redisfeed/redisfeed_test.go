package redisfeed_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/changefeed/redisfeed"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "redis")
	require.NoError(t, err)

	return endpoint
}

func TestRedisFeed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	redisURL := startRedis(ctx, t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	client, err := redisfeed.NewClient(ctx, redisURL)
	require.NoError(t, err)

	publisher := redisfeed.NewPublisher(client, logger)
	defer publisher.Close()

	s, err := redisfeed.NewTransport(client).Connect(ctx, "h1")
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(ctx, models.ChangeNotification{
		TenantID: "h2", EntityType: "beds", Operation: models.OperationDelete, RecordID: "b1",
	}))
	require.NoError(t, publisher.Publish(ctx, models.ChangeNotification{
		TenantID: "h1", EntityType: "tasks", Operation: models.OperationUpdate, Record: models.Record{"id": "t1", "status": "done"},
	}))
	require.NoError(t, client.Publish(ctx, changefeed.ChannelName("h1"), "garbage").Err())

	notification, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", notification.ID())
	assert.Equal(t, "done", notification.Record["status"])

	_, err = s.Recv(ctx)
	require.ErrorIs(t, err, changefeed.ErrMalformedNotification)

	require.NoError(t, s.Close())

	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, changefeed.ErrStreamClosed)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := redisfeed.NewClient(context.Background(), "not a url")
	assert.Error(t, err)
}
