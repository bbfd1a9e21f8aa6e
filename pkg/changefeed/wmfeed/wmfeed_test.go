package wmfeed

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTransport_DeliversTenantChanges(t *testing.T) {
	pubSub := newPubSub()
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h1, err := NewTransport(pubSub).Connect(ctx, "h1")
	require.NoError(t, err)
	defer h1.Close()

	publisher := NewPublisher(pubSub, testLogger())

	require.NoError(t, publisher.Publish(ctx, models.ChangeNotification{
		TenantID: "h2", EntityType: "beds", Operation: models.OperationDelete, RecordID: "b1",
	}))
	require.NoError(t, publisher.Publish(ctx, models.ChangeNotification{
		TenantID: "h1", EntityType: "patients", Operation: models.OperationInsert, Record: models.Record{"id": "p1"},
	}))

	notification, err := h1.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h1", notification.TenantID)
	assert.Equal(t, "p1", notification.ID())
	assert.Equal(t, models.OperationInsert, notification.Operation)
}

func TestTransport_MalformedPayload(t *testing.T) {
	pubSub := newPubSub()
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewTransport(pubSub).Connect(ctx, "h1")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, pubSub.Publish(changefeed.ChannelName("h1"), message.NewMessage(watermill.NewUUID(), []byte("{not json"))))

	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, changefeed.ErrMalformedNotification)
}

func TestTransport_CloseEndsStream(t *testing.T) {
	pubSub := newPubSub()
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewTransport(pubSub).Connect(ctx, "h1")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, changefeed.ErrStreamClosed)
}
