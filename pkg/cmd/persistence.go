package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/persistence/file"
	"github.com/dukex/wardflow/pkg/persistence/memory"
	"github.com/dukex/wardflow/pkg/persistence/postgresql"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// NewPersistence picks the store from the DATABASE_URL scheme: memory://, file://<dir> or
// postgres://. publisher receives the changes of the memory and file stores and may be nil;
// the postgres store publishes through its own trigger.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, publisher changefeed.Publisher) (persistence.Store, error) {
	scheme, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return nil, fmt.Errorf("%w: database url %q has no scheme", ErrUnsupportedProvider, databaseURL)
	}

	switch scheme {
	case "memory":
		return memory.NewStore(logger, publisher), nil
	case "file":
		return file.NewStore(rest, logger, publisher)
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("%w: persistence %q", ErrUnsupportedProvider, scheme)
	}
}

// OpenStore opens the entity store together with its change feed. A postgres feed reads the
// store's own notifications and completes truncated ones from it; every other feed receives
// the changes of a memory or file store.
func OpenStore(ctx context.Context, databaseURL string, feedConfig ChangeFeedConfig, logger *slog.Logger) (persistence.Store, *ChangeFeed, error) {
	if feedConfig.Kind == "postgres" {
		store, err := NewPersistence(ctx, logger, databaseURL, nil)
		if err != nil {
			return nil, nil, err
		}

		feed, err := NewChangeFeed(ctx, feedConfig, store, logger)
		if err != nil {
			_ = store.Close(ctx)

			return nil, nil, err
		}

		return store, feed, nil
	}

	feed, err := NewChangeFeed(ctx, feedConfig, nil, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := NewPersistence(ctx, logger, databaseURL, feed.Publisher)
	if err != nil {
		_ = feed.Close()

		return nil, nil, err
	}

	return store, feed, nil
}
