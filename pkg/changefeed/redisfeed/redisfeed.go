// Package redisfeed carries change notifications over Redis pub/sub, one channel per tenant.
package redisfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/redis/go-redis/v9"
)

// NewClient parses a redis:// URL and checks that the server answers.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

type Publisher struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewPublisher(client redis.UniversalClient, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger.With("module", "redisfeed")}
}

func (p *Publisher) Publish(ctx context.Context, notification models.ChangeNotification) error {
	payload, err := changefeed.Encode(notification)
	if err != nil {
		return err
	}

	channel := changefeed.ChannelName(notification.TenantID)

	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish change to %s: %w", channel, err)
	}

	p.logger.DebugContext(ctx, "Published change notification",
		"tenant_id", notification.TenantID,
		"entity_type", notification.EntityType,
		"receivers", receivers)

	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

type Transport struct {
	client redis.UniversalClient
}

func NewTransport(client redis.UniversalClient) *Transport {
	return &Transport{client: client}
}

// Connect subscribes and waits for the server to confirm before returning, so changes
// published after Connect are not missed.
func (t *Transport) Connect(ctx context.Context, tenantID string) (changefeed.Stream, error) {
	channel := changefeed.ChannelName(tenantID)
	pubsub := t.client.Subscribe(ctx, channel)

	_, err := pubsub.Receive(ctx)
	if err != nil {
		_ = pubsub.Close()

		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	return &stream{pubsub: pubsub}, nil
}

type stream struct {
	pubsub *redis.PubSub
	once   sync.Once
}

func (s *stream) Recv(ctx context.Context) (models.ChangeNotification, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.ChangeNotification{}, ctxErr
		}

		return models.ChangeNotification{}, errors.Join(changefeed.ErrStreamClosed, err)
	}

	return changefeed.Decode([]byte(msg.Payload))
}

func (s *stream) Close() error {
	var err error

	s.once.Do(func() {
		err = s.pubsub.Close()
	})

	return err
}
