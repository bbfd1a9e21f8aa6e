package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/changefeed/pgnotify"
	"github.com/dukex/wardflow/pkg/changefeed/redisfeed"
	"github.com/dukex/wardflow/pkg/changefeed/wmfeed"
	"github.com/dukex/wardflow/pkg/changefeed/wsfeed"
	"github.com/dukex/wardflow/pkg/channels/gochannel"
	"github.com/dukex/wardflow/pkg/channels/kafka"
)

// ChangeFeedConfig selects how entity store changes travel. Kind is one of none, gochannel,
// postgres, redis, kafka or websocket.
type ChangeFeedConfig struct {
	Kind         string
	DatabaseURL  string
	RedisURL     string
	GatewayURL   string
	GatewayToken string
	EntityTypes  []string
}

// ChangeFeed is the publishing and receiving side of one configured feed. Either may be nil:
// postgres publishes from its trigger and websocket clients only receive.
type ChangeFeed struct {
	Publisher changefeed.Publisher
	Transport changefeed.Transport
}

// NewChangeFeed builds both sides. fetcher completes truncated postgres notifications and may be nil.
func NewChangeFeed(ctx context.Context, config ChangeFeedConfig, fetcher pgnotify.Fetcher, logger *slog.Logger) (*ChangeFeed, error) {
	switch config.Kind {
	case "", "none":
		return &ChangeFeed{}, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, err
		}

		return &ChangeFeed{Publisher: wmfeed.NewPublisher(pub, logger), Transport: wmfeed.NewTransport(sub)}, nil
	case "postgres":
		return &ChangeFeed{Transport: pgnotify.NewTransport(config.DatabaseURL, fetcher, logger)}, nil
	case "redis":
		client, err := redisfeed.NewClient(ctx, config.RedisURL)
		if err != nil {
			return nil, err
		}

		return &ChangeFeed{Publisher: redisfeed.NewPublisher(client, logger), Transport: redisfeed.NewTransport(client)}, nil
	case "kafka":
		wmLogger := watermill.NewSlogLogger(logger)

		pub, err := kafka.CreatePublisher(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka change publisher: %w", err)
		}

		sub, err := kafka.CreateBroadcastSubscriber(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka change subscriber: %w", err)
		}

		return &ChangeFeed{Publisher: wmfeed.NewPublisher(pub, logger), Transport: wmfeed.NewTransport(sub)}, nil
	case "websocket":
		return &ChangeFeed{Transport: wsfeed.NewTransport(config.GatewayURL, config.GatewayToken, config.EntityTypes...)}, nil
	default:
		return nil, fmt.Errorf("%w: change feed %q", ErrUnsupportedProvider, config.Kind)
	}
}

func (f *ChangeFeed) Close() error {
	if f.Publisher == nil {
		return nil
	}

	return f.Publisher.Close()
}
