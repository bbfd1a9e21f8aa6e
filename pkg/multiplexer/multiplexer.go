// Package multiplexer shares one change feed connection per tenant between many consumers
// and reconnects it with capped exponential backoff.
package multiplexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
)

// State is the lifecycle of a tenant channel.
type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// ConnectionStatus is what consumers render.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusFailed       ConnectionStatus = "failed"
	StatusClosed       ConnectionStatus = "closed"
)

func (s State) Status() ConnectionStatus {
	switch s {
	case StateOpen:
		return StatusConnected
	case StateFailed:
		return StatusFailed
	case StateClosed:
		return StatusClosed
	default:
		return StatusReconnecting
	}
}

type Config struct {
	// BaseDelay is the first reconnect delay. Each consecutive failure doubles it.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts is the number of consecutive reconnects tried before the channel fails.
	// Zero retries forever.
	MaxAttempts int
	// QueueSize buffers notifications per handle. A full queue blocks the tenant channel.
	QueueSize int
	// Sleep waits between attempts; tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultConfig() Config {
	return Config{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
		QueueSize:   256,
		Sleep:       sleep,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.BaseDelay <= 0 {
		c.BaseDelay = defaults.BaseDelay
	}

	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = max(defaults.MaxDelay, c.BaseDelay)
	}

	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}

	if c.Sleep == nil {
		c.Sleep = sleep
	}

	return c
}

// newBackOff yields min(2^attempt * base, max) without jitter and never stops on its own.
func (c Config) newBackOff() *backoff.ExponentialBackOff {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     c.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	policy.Reset()

	return policy
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Multiplexer struct {
	transport changefeed.Transport
	config    Config
	logger    *slog.Logger

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
}

func New(transport changefeed.Transport, config Config, logger *slog.Logger) *Multiplexer {
	return &Multiplexer{
		transport: transport,
		config:    config.withDefaults(),
		logger:    logger.With("module", "multiplexer"),
		channels:  make(map[string]*channel),
	}
}

// Open registers descriptors on the tenant's channel, connecting it if this is the first
// consumer. The handle is closed when ctx is cancelled or Close is called.
func (m *Multiplexer) Open(ctx context.Context, tenantID string, descriptors []models.SubscriptionDescriptor) (*Handle, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	if len(descriptors) == 0 {
		return nil, ErrNoDescriptors
	}

	for _, descriptor := range descriptors {
		err := descriptor.Validate()
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	handle := newHandle(tenantID, descriptors, m.config.QueueSize)

	c := m.channels[tenantID]
	if c == nil || !c.add(handle) {
		c = newChannel(m, tenantID)
		m.channels[tenantID] = c
		c.add(handle)

		go c.run()
	}

	handle.channel = c
	handle.setStopAfter(context.AfterFunc(ctx, func() { _ = handle.Close() }))

	return handle, nil
}

// Close tears down every channel and finishes every handle.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true

	channels := make([]*channel, 0, len(m.channels))
	for _, c := range m.channels {
		channels = append(channels, c)
	}

	m.channels = make(map[string]*channel)
	m.mu.Unlock()

	for _, c := range channels {
		c.shutdown()
	}

	return nil
}

// State reports the state of a tenant's channel, or StateClosed when none is open.
func (m *Multiplexer) State(tenantID string) State {
	m.mu.Lock()
	c := m.channels[tenantID]
	m.mu.Unlock()

	if c == nil {
		return StateClosed
	}

	return c.currentState()
}

func (m *Multiplexer) forget(c *channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channels[c.tenantID] == c {
		delete(m.channels, c.tenantID)
	}
}

func (m *Multiplexer) connect(ctx context.Context, tenantID string) (changefeed.Stream, error) {
	stream, err := m.transport.Connect(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if stream == nil {
		return nil, errors.New("connect: transport returned no stream")
	}

	return stream, nil
}
