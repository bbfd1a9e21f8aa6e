package multiplexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
)

// channel owns the single stream of one tenant and fans its notifications out to handles.
type channel struct {
	m        *Multiplexer
	tenantID string
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	state    State
	handles  map[*Handle]struct{}
	stopping bool
}

func newChannel(m *Multiplexer, tenantID string) *channel {
	ctx, cancel := context.WithCancel(context.Background())

	return &channel{
		m:        m,
		tenantID: tenantID,
		logger:   m.logger.With("tenant_id", tenantID),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateConnecting,
		handles:  make(map[*Handle]struct{}),
	}
}

// add registers a handle unless the channel is already shutting down.
func (c *channel) add(h *Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopping {
		return false
	}

	c.handles[h] = struct{}{}
	h.setStatus(c.state.Status())

	return true
}

// remove drops a handle and stops the channel once no handle is left.
func (c *channel) remove(h *Handle) {
	c.mu.Lock()
	delete(c.handles, h)

	last := len(c.handles) == 0 && !c.stopping
	if last {
		c.stopping = true
	}
	c.mu.Unlock()

	if !last {
		return
	}

	c.m.forget(c)
	c.cancel()
	<-c.done
}

func (c *channel) shutdown() {
	c.mu.Lock()
	c.stopping = true
	handles := c.snapshot()
	c.mu.Unlock()

	c.cancel()
	<-c.done

	for _, h := range handles {
		h.finish(StatusClosed, nil)
	}
}

func (c *channel) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *channel) snapshot() []*Handle {
	handles := make([]*Handle, 0, len(c.handles))
	for h := range c.handles {
		handles = append(handles, h)
	}

	return handles
}

func (c *channel) setState(state State, cause error) {
	c.mu.Lock()
	previous := c.state
	c.state = state
	handles := c.snapshot()
	c.mu.Unlock()

	if previous == state {
		return
	}

	switch {
	case state == StateOpen:
		metrics.ChannelsOpen.Inc()
	case previous == StateOpen:
		metrics.ChannelsOpen.Dec()
	}

	if cause != nil {
		c.logger.Warn("Change channel state changed", "from", previous, "to", state, "error", cause)
	} else {
		c.logger.Info("Change channel state changed", "from", previous, "to", state)
	}

	for _, h := range handles {
		h.setStatus(state.Status())
	}
}

func (c *channel) run() {
	defer close(c.done)
	defer c.cancel()

	policy := c.m.config.newBackOff()
	failures := 0

	for {
		stream, err := c.m.connect(c.ctx, c.tenantID)
		if err == nil {
			policy.Reset()
			failures = 0

			c.setState(StateOpen, nil)

			err = c.pump(stream)
			_ = stream.Close()
		}

		if c.ctx.Err() != nil {
			c.setState(StateClosed, nil)

			return
		}

		failures++

		if c.m.config.MaxAttempts > 0 && failures > c.m.config.MaxAttempts {
			c.fail(&ExhaustedReconnect{TenantID: c.tenantID, Attempts: c.m.config.MaxAttempts, Err: err})

			return
		}

		delay := policy.NextBackOff()

		c.setState(StateReconnecting, &ChannelError{TenantID: c.tenantID, Attempt: failures, Err: err})
		metrics.ChannelReconnects.Inc()

		if c.m.config.Sleep(c.ctx, delay) != nil {
			c.setState(StateClosed, nil)

			return
		}
	}
}

// pump delivers notifications until the stream fails or the channel is cancelled.
func (c *channel) pump(stream changefeed.Stream) error {
	for {
		notification, err := stream.Recv(c.ctx)
		if err != nil {
			if errors.Is(err, changefeed.ErrMalformedNotification) {
				metrics.NotificationsDropped.WithLabelValues("malformed").Inc()
				c.logger.Warn("Dropping malformed change notification", "error", err)

				continue
			}

			return err
		}

		if notification.TenantID == "" {
			notification.TenantID = c.tenantID
		}

		if notification.TenantID != c.tenantID {
			metrics.NotificationsDropped.WithLabelValues("tenant_mismatch").Inc()
			c.logger.Warn("Dropping change notification of another tenant", "notification_tenant_id", notification.TenantID)

			continue
		}

		err = notification.Validate()
		if err != nil {
			metrics.NotificationsDropped.WithLabelValues("invalid").Inc()
			c.logger.Warn("Dropping invalid change notification", "error", err)

			continue
		}

		c.broadcast(notification)
	}
}

func (c *channel) broadcast(notification models.ChangeNotification) {
	c.mu.Lock()
	handles := c.snapshot()
	c.mu.Unlock()

	for _, h := range handles {
		if h.wants(notification) {
			h.deliver(c.ctx, notification)
		}
	}
}

func (c *channel) fail(err error) {
	c.mu.Lock()
	c.stopping = true
	handles := c.snapshot()
	c.mu.Unlock()

	c.setState(StateFailed, err)
	c.m.forget(c)

	for _, h := range handles {
		h.finish(StatusFailed, err)
	}
}
