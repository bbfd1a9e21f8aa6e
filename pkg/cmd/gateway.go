package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/changefeed/wsfeed"
	"github.com/dukex/wardflow/pkg/multiplexer"
)

// Gateway serves the websocket change gateway on its own listener.
type Gateway struct {
	mux    *multiplexer.Multiplexer
	server *http.Server
	logger *slog.Logger
}

func NewGateway(addr, token string, transport changefeed.Transport, logger *slog.Logger) *Gateway {
	mux := multiplexer.New(transport, multiplexer.DefaultConfig(), logger)

	return &Gateway{
		mux: mux,
		server: &http.Server{
			Addr:              addr,
			Handler:           wsfeed.NewGateway(mux, token, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start listens in the background until Shutdown.
func (g *Gateway) Start(ctx context.Context) {
	go func() {
		g.logger.InfoContext(ctx, "Change gateway listening", "addr", g.server.Addr)

		err := g.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.ErrorContext(ctx, "Change gateway stopped", "error", err)
		}
	}()
}

// Shutdown closes every upstream channel first so open websockets end, then stops the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	_ = g.mux.Close()

	return g.server.Shutdown(ctx)
}
