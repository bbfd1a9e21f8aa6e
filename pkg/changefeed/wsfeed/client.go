// Package wsfeed relays change notifications to remote clients over websockets.
//
// The Gateway runs next to the entity store and shares one upstream channel per tenant
// between its websocket clients. The Transport is the client side.
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
)

const readLimit = 1 << 20

type Transport struct {
	baseURL     string
	token       string
	entityTypes []string
}

// NewTransport creates a client for a gateway at baseURL that asks for the given entity types.
func NewTransport(baseURL, token string, entityTypes ...string) *Transport {
	return &Transport{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       token,
		entityTypes: append([]string(nil), entityTypes...),
	}
}

func (t *Transport) endpoint(tenantID string) string {
	query := url.Values{}
	for _, entityType := range t.entityTypes {
		query.Add("entity_type", entityType)
	}

	return t.baseURL + "/tenants/" + url.PathEscape(tenantID) + "/changes?" + query.Encode()
}

func (t *Transport) Connect(ctx context.Context, tenantID string) (changefeed.Stream, error) {
	options := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if t.token != "" {
		options.HTTPHeader.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := websocket.Dial(ctx, t.endpoint(tenantID), options)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to dial change gateway: %w", err)
	}

	conn.SetReadLimit(readLimit)

	return &stream{conn: conn}, nil
}

type stream struct {
	conn *websocket.Conn
	once sync.Once
}

func (s *stream) Recv(ctx context.Context) (models.ChangeNotification, error) {
	_, payload, err := s.conn.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.ChangeNotification{}, ctxErr
		}

		return models.ChangeNotification{}, errors.Join(changefeed.ErrStreamClosed, err)
	}

	return changefeed.Decode(payload)
}

func (s *stream) Close() error {
	var err error

	s.once.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "")
	})

	return err
}
