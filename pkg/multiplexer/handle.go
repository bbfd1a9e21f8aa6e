package multiplexer

import (
	"context"
	"sync"

	"github.com/dukex/wardflow/pkg/models"
)

// Handle is one consumer's registration on a tenant channel.
//
// Notifications arrive in channel order. Done is closed when the handle is closed, the
// multiplexer shuts down, or the channel fails; Err then reports an *ExhaustedReconnect.
type Handle struct {
	tenantID    string
	descriptors []models.SubscriptionDescriptor
	channel     *channel
	stopAfter   func() bool

	queue    chan models.ChangeNotification
	statuses chan ConnectionStatus
	done     chan struct{}

	finishOnce sync.Once
	closeOnce  sync.Once

	mu     sync.Mutex
	status ConnectionStatus
	err    error
}

func newHandle(tenantID string, descriptors []models.SubscriptionDescriptor, queueSize int) *Handle {
	return &Handle{
		tenantID:    tenantID,
		descriptors: append([]models.SubscriptionDescriptor(nil), descriptors...),
		queue:       make(chan models.ChangeNotification, queueSize),
		statuses:    make(chan ConnectionStatus, 1),
		done:        make(chan struct{}),
		status:      StatusReconnecting,
	}
}

func (h *Handle) TenantID() string {
	return h.tenantID
}

func (h *Handle) Descriptors() []models.SubscriptionDescriptor {
	return append([]models.SubscriptionDescriptor(nil), h.descriptors...)
}

func (h *Handle) Notifications() <-chan models.ChangeNotification {
	return h.queue
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Status() ConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.status
}

// StatusChanges yields the latest status whenever it changes. Intermediate values may be skipped.
func (h *Handle) StatusChanges() <-chan ConnectionStatus {
	return h.statuses
}

func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}

// Close releases the handle. The tenant channel closes when its last handle is released.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		stop := h.stopAfter
		h.mu.Unlock()

		if stop != nil {
			stop()
		}

		h.finish(StatusClosed, nil)

		if h.channel != nil {
			h.channel.remove(h)
		}
	})

	return nil
}

// wants reports whether any descriptor covers the notification's entity type and operation.
// Filters are left to the reconciler so that records leaving a filtered view are seen.
func (h *Handle) wants(notification models.ChangeNotification) bool {
	for _, descriptor := range h.descriptors {
		if descriptor.EntityType == notification.EntityType && descriptor.Accepts(notification.Operation) {
			return true
		}
	}

	return false
}

func (h *Handle) deliver(ctx context.Context, notification models.ChangeNotification) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.queue <- notification:
	case <-h.done:
	case <-ctx.Done():
	}
}

func (h *Handle) setStopAfter(stop func() bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopAfter = stop
}

func (h *Handle) setStatus(status ConnectionStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status == status || h.status == StatusClosed || h.status == StatusFailed {
		return
	}

	h.status = status

	select {
	case <-h.statuses:
	default:
	}

	h.statuses <- status
}

func (h *Handle) finish(status ConnectionStatus, err error) {
	h.finishOnce.Do(func() {
		h.mu.Lock()
		if err != nil {
			h.err = err
		}
		h.mu.Unlock()

		h.setStatus(status)
		close(h.done)
	})
}
