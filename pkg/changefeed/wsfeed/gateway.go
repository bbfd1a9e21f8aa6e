package wsfeed

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/multiplexer"
)

// Gateway serves GET /tenants/{tenant}/changes?entity_type=...&operation=... as a websocket
// that streams every matching notification of the tenant as a JSON text message.
type Gateway struct {
	mux    *multiplexer.Multiplexer
	token  string
	logger *slog.Logger
}

// NewGateway creates a gateway. An empty token disables authentication.
func NewGateway(mux *multiplexer.Multiplexer, token string, logger *slog.Logger) *Gateway {
	return &Gateway{
		mux:    mux,
		token:  token,
		logger: logger.With("module", "ws_gateway"),
	}
}

func (g *Gateway) Handler() http.Handler {
	routes := http.NewServeMux()
	routes.HandleFunc("GET /tenants/{tenant}/changes", g.serveChanges)

	return routes
}

func (g *Gateway) authorized(r *http.Request) bool {
	if g.token == "" {
		return true
	}

	given := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	return subtle.ConstantTimeCompare([]byte(given), []byte(g.token)) == 1
}

func descriptorsFrom(r *http.Request) []models.SubscriptionDescriptor {
	query := r.URL.Query()

	operations := make([]models.Operation, 0, len(query["operation"]))
	for _, op := range query["operation"] {
		operations = append(operations, models.Operation(op))
	}

	descriptors := make([]models.SubscriptionDescriptor, 0, len(query["entity_type"]))
	for _, entityType := range query["entity_type"] {
		descriptors = append(descriptors, models.SubscriptionDescriptor{EntityType: entityType, Operations: operations})
	}

	return descriptors
}

func (g *Gateway) serveChanges(w http.ResponseWriter, r *http.Request) {
	if !g.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)

		return
	}

	tenantID := r.PathValue("tenant")
	ctx := r.Context()

	handle, err := g.mux.Open(ctx, tenantID, descriptorsFrom(r))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, multiplexer.ErrClosed) {
			status = http.StatusServiceUnavailable
		}

		http.Error(w, err.Error(), status)

		return
	}

	defer func() {
		_ = handle.Close()
	}()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.WarnContext(ctx, "Websocket upgrade failed", "tenant_id", tenantID, "error", err)

		return
	}

	g.logger.InfoContext(ctx, "Change client connected", "tenant_id", tenantID, "remote", r.RemoteAddr)

	// The client never sends data; CloseRead answers pings and notices disconnects.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")

			return
		case <-handle.Done():
			reason := "closed"
			if handle.Err() != nil {
				reason = "upstream unavailable"
			}

			_ = conn.Close(websocket.StatusTryAgainLater, reason)

			return
		case notification := <-handle.Notifications():
			err = wsjson.Write(ctx, conn, notification)
			if err != nil {
				g.logger.DebugContext(ctx, "Change client went away", "tenant_id", tenantID, "error", err)

				return
			}
		}
	}
}
