// Package changes gives application code a live, locally cached view of entity store data.
//
// A Subscription owns a cache that is seeded from the store, then kept current by applying the
// tenant's change notifications in order. The tenant's upstream channel is shared through the
// multiplexer with every other subscription of the same process.
package changes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/wardflow/pkg/cache"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/multiplexer"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/predicate"
)

// Loader reads the records used to seed a new subscription. persistence.Store satisfies it.
type Loader interface {
	Query(ctx context.Context, entityType string, query persistence.Query) ([]models.Record, error)
}

type Client struct {
	mux    *multiplexer.Multiplexer
	loader Loader
	logger *slog.Logger
}

// NewClient creates a client. loader may be nil, in which case caches start empty.
func NewClient(mux *multiplexer.Multiplexer, loader Loader, logger *slog.Logger) *Client {
	return &Client{
		mux:    mux,
		loader: loader,
		logger: logger.With("module", "changes"),
	}
}

// Subscribe registers descriptors for a tenant. The handle is opened before seeding so that
// changes made while the seed query runs are applied afterwards instead of being lost.
// ctx bounds the seed query only; the subscription lives until Close.
func (c *Client) Subscribe(ctx context.Context, tenantID string, descriptors ...models.SubscriptionDescriptor) (*Subscription, error) {
	handle, err := c.mux.Open(context.WithoutCancel(ctx), tenantID, descriptors)
	if err != nil {
		return nil, err
	}

	store := cache.NewStore()

	err = c.seed(ctx, tenantID, descriptors, store)
	if err != nil {
		_ = handle.Close()

		return nil, err
	}

	sub := &Subscription{
		handle:     handle,
		reconciler: cache.NewReconciler(store, descriptors, c.logger),
		updates:    make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		logger:     c.logger.With("tenant_id", tenantID),
	}

	go sub.run()

	return sub, nil
}

func (c *Client) seed(ctx context.Context, tenantID string, descriptors []models.SubscriptionDescriptor, store *cache.Store) error {
	if c.loader == nil {
		return nil
	}

	for _, descriptor := range descriptors {
		if !descriptor.Seed || len(descriptor.AffectedCacheKeys) == 0 {
			continue
		}

		records, err := c.loader.Query(ctx, descriptor.EntityType, persistence.Query{TenantID: tenantID, OrderBy: "created_at"})
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", descriptor.EntityType, err)
		}

		matching := make([]models.Record, 0, len(records))

		for _, record := range records {
			ok, err := predicate.Match(descriptor.Filter, record)
			if err != nil {
				return fmt.Errorf("invalid filter for %s: %w", descriptor.EntityType, err)
			}

			if ok {
				matching = append(matching, record)
			}
		}

		for _, key := range descriptor.AffectedCacheKeys {
			store.Seed(key, descriptor.EntityType, matching)
		}

		c.logger.DebugContext(ctx, "Seeded cache",
			"tenant_id", tenantID,
			"entity_type", descriptor.EntityType,
			"records", len(matching))
	}

	return nil
}

// Subscription is one consumer's live cache. Reads return copies and are safe from any goroutine.
type Subscription struct {
	handle     *multiplexer.Handle
	reconciler *cache.Reconciler
	updates    chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

func (s *Subscription) run() {
	defer close(s.stopped)

	for {
		select {
		case <-s.handle.Done():
			if err := s.handle.Err(); err != nil {
				s.logger.Error("Change subscription failed", "error", err)
			}

			return
		case notification := <-s.handle.Notifications():
			if s.reconciler.Apply(notification) {
				s.signal()
			}
		}
	}
}

func (s *Subscription) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Subscription) List(key string) []models.Record {
	return s.reconciler.Store().List(key)
}

func (s *Subscription) Record(entityType, id string) (models.Record, bool) {
	return s.reconciler.Store().Record(entityType, id)
}

// Updates receives a value after the cache changed. Signals coalesce while unread.
func (s *Subscription) Updates() <-chan struct{} {
	return s.updates
}

func (s *Subscription) Status() multiplexer.ConnectionStatus {
	return s.handle.Status()
}

func (s *Subscription) StatusChanges() <-chan multiplexer.ConnectionStatus {
	return s.handle.StatusChanges()
}

// Err returns the terminal error once the upstream channel gave up reconnecting.
func (s *Subscription) Err() error {
	return s.handle.Err()
}

// Done is closed once the subscription stopped applying changes.
func (s *Subscription) Done() <-chan struct{} {
	return s.stopped
}

func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		_ = s.handle.Close()
		<-s.stopped
	})

	return nil
}
