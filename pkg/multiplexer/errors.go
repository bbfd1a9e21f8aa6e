package multiplexer

import (
	"errors"
	"fmt"
)

var (
	ErrClosed         = errors.New("multiplexer closed")
	ErrNoDescriptors  = errors.New("at least one subscription descriptor is required")
	ErrTenantRequired = errors.New("tenant id is required")
)

// ChannelError is a transport-level failure of a tenant channel. It triggers a reconnect.
type ChannelError struct {
	TenantID string
	Attempt  int
	Err      error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("change channel for tenant %s failed (attempt %d): %v", e.TenantID, e.Attempt, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ExhaustedReconnect is terminal: the channel gave up after the configured number of attempts
// and every handle on it is done. Consumers must open a new subscription.
type ExhaustedReconnect struct {
	TenantID string
	Attempts int
	Err      error
}

func (e *ExhaustedReconnect) Error() string {
	return fmt.Sprintf("change channel for tenant %s gave up after %d reconnect attempts: %v", e.TenantID, e.Attempts, e.Err)
}

func (e *ExhaustedReconnect) Unwrap() error {
	return e.Err
}

func IsExhaustedReconnect(err error) bool {
	var exhausted *ExhaustedReconnect

	return errors.As(err, &exhausted)
}
