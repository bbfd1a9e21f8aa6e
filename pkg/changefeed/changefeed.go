// Package changefeed defines the transport used to deliver entity store changes to clients.
//
// A Transport opens one Stream per tenant. Streams do not reconnect on their own; a failed
// Recv is surfaced to the caller, which owns the retry policy.
package changefeed

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/wardflow/pkg/models"
)

var (
	// ErrStreamClosed is returned by Recv once the underlying connection has gone away.
	ErrStreamClosed = errors.New("change stream closed")
	// ErrMalformedNotification is returned when a message cannot be decoded as a change notification.
	ErrMalformedNotification = errors.New("malformed change notification")
)

// Stream is one live connection carrying the changes of a single tenant.
type Stream interface {
	Recv(ctx context.Context) (models.ChangeNotification, error)
	Close() error
}

type Transport interface {
	Connect(ctx context.Context, tenantID string) (Stream, error)
}

// Publisher pushes changes to every connected stream of the notification's tenant.
type Publisher interface {
	Publish(ctx context.Context, notification models.ChangeNotification) error
	Close() error
}

// ChannelName is the per-tenant channel or topic name shared by every transport.
// The tenant id is hashed so that any id yields a valid identifier.
func ChannelName(tenantID string) string {
	sum := md5.Sum([]byte(tenantID))

	return "wardflow_changes_" + hex.EncodeToString(sum[:])
}

func Encode(notification models.ChangeNotification) ([]byte, error) {
	payload, err := json.Marshal(notification)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change notification: %w", err)
	}

	return payload, nil
}

func Decode(payload []byte) (models.ChangeNotification, error) {
	var notification models.ChangeNotification

	err := json.Unmarshal(payload, &notification)
	if err != nil {
		return models.ChangeNotification{}, errors.Join(ErrMalformedNotification, err)
	}

	return notification, nil
}
