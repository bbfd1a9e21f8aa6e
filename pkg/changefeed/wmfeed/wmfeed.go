// Package wmfeed carries change notifications over a watermill pub/sub, one topic per tenant.
package wmfeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
)

const operationMetadataKey = "operation"

type Publisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewPublisher(publisher message.Publisher, logger *slog.Logger) *Publisher {
	return &Publisher{
		publisher: publisher,
		logger:    logger.With("module", "wmfeed"),
	}
}

func (p *Publisher) Publish(ctx context.Context, notification models.ChangeNotification) error {
	payload, err := changefeed.Encode(notification)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(operationMetadataKey, string(notification.Operation))

	topic := changefeed.ChannelName(notification.TenantID)

	err = p.publisher.Publish(topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish change to %s: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "Published change notification",
		"tenant_id", notification.TenantID,
		"entity_type", notification.EntityType,
		"operation", notification.Operation)

	return nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// Transport subscribes to a tenant's topic on every Connect. The subscriber must give each
// subscription every message, as gochannel and a Kafka subscriber without a consumer group do.
type Transport struct {
	subscriber message.Subscriber
}

func NewTransport(subscriber message.Subscriber) *Transport {
	return &Transport{subscriber: subscriber}
}

func (t *Transport) Connect(ctx context.Context, tenantID string) (changefeed.Stream, error) {
	subCtx, cancel := context.WithCancel(ctx)

	messages, err := t.subscriber.Subscribe(subCtx, changefeed.ChannelName(tenantID))
	if err != nil {
		cancel()

		return nil, fmt.Errorf("failed to subscribe to changes of %s: %w", tenantID, err)
	}

	return &stream{messages: messages, cancel: cancel}, nil
}

type stream struct {
	messages <-chan *message.Message
	cancel   context.CancelFunc
	once     sync.Once
}

func (s *stream) Recv(ctx context.Context) (models.ChangeNotification, error) {
	select {
	case <-ctx.Done():
		return models.ChangeNotification{}, ctx.Err()
	case msg, ok := <-s.messages:
		if !ok {
			return models.ChangeNotification{}, changefeed.ErrStreamClosed
		}

		msg.Ack()

		return changefeed.Decode(msg.Payload)
	}
}

func (s *stream) Close() error {
	s.once.Do(s.cancel)

	return nil
}
