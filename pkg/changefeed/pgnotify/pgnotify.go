// Package pgnotify receives entity store changes through PostgreSQL LISTEN/NOTIFY.
//
// The postgresql store's trigger publishes on changefeed.ChannelName(tenant). Payloads
// that exceed the NOTIFY limit arrive without record bodies and are completed from the store.
package pgnotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/jackc/pgx/v5"
)

// Fetcher loads the current version of a record. persistence.Store satisfies it.
type Fetcher interface {
	Get(ctx context.Context, entityType, tenantID, id string) (models.Record, error)
}

type Transport struct {
	databaseURL string
	fetcher     Fetcher
	logger      *slog.Logger
}

// NewTransport creates a transport that opens one dedicated connection per stream.
// fetcher may be nil, in which case truncated inserts and updates are reported as malformed.
func NewTransport(databaseURL string, fetcher Fetcher, logger *slog.Logger) *Transport {
	return &Transport{
		databaseURL: databaseURL,
		fetcher:     fetcher,
		logger:      logger.With("module", "pgnotify"),
	}
}

func (t *Transport) Connect(ctx context.Context, tenantID string) (changefeed.Stream, error) {
	conn, err := pgx.Connect(ctx, t.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	channel := changefeed.ChannelName(tenantID)

	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	if err != nil {
		_ = conn.Close(context.Background())

		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	t.logger.DebugContext(ctx, "Listening for changes", "tenant_id", tenantID, "channel", channel)

	return &stream{conn: conn, tenantID: tenantID, transport: t}, nil
}

// stream is not safe for concurrent Recv calls; Close may follow a Recv that has returned.
type stream struct {
	conn      *pgx.Conn
	tenantID  string
	transport *Transport
	once      sync.Once
}

func (s *stream) Recv(ctx context.Context) (models.ChangeNotification, error) {
	received, err := s.conn.WaitForNotification(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.ChangeNotification{}, ctxErr
		}

		return models.ChangeNotification{}, errors.Join(changefeed.ErrStreamClosed, err)
	}

	notification, err := changefeed.Decode([]byte(received.Payload))
	if err != nil {
		return models.ChangeNotification{}, err
	}

	if notification.Truncated && notification.Operation != models.OperationDelete {
		return s.complete(ctx, notification)
	}

	return notification, nil
}

func (s *stream) complete(ctx context.Context, notification models.ChangeNotification) (models.ChangeNotification, error) {
	if s.transport.fetcher == nil {
		return models.ChangeNotification{}, fmt.Errorf("%w: truncated %s of %s/%s",
			changefeed.ErrMalformedNotification, notification.Operation, notification.EntityType, notification.RecordID)
	}

	tenantID := notification.TenantID
	if tenantID == "" {
		tenantID = s.tenantID
	}

	record, err := s.transport.fetcher.Get(ctx, notification.EntityType, tenantID, notification.RecordID)
	if err != nil {
		return models.ChangeNotification{}, errors.Join(changefeed.ErrMalformedNotification, err)
	}

	notification.Record = record
	notification.Truncated = false

	return notification, nil
}

func (s *stream) Close() error {
	var err error

	s.once.Do(func() {
		err = s.conn.Close(context.Background())
	})

	return err
}
