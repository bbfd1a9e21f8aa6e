package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/wardflow/pkg/models"
)

var (
	ErrInvalidTrigger    = errors.New("invalid trigger request")
	ErrAlreadyDispatched = errors.New("workflow event already in flight")
)

// DispatchFailure is returned by Trigger when the event could not be made durable.
// Nothing else happened for the event and the caller should retry.
type DispatchFailure struct {
	TenantID  string
	EventType string
	Err       error
}

func (e *DispatchFailure) Error() string {
	return fmt.Sprintf("failed to record %s event for tenant %s: %v", e.EventType, e.TenantID, e.Err)
}

func (e *DispatchFailure) Unwrap() error {
	return e.Err
}

func IsDispatchFailure(err error) bool {
	var failure *DispatchFailure

	return errors.As(err, &failure)
}

// ActionFailure describes one failed action. It is logged and written to the action log,
// never returned to the caller of Trigger.
type ActionFailure struct {
	EventID string
	RuleID  string
	Index   int
	Kind    models.ActionKind
	Reason  string
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("action %d (%s) of rule %s failed for event %s: %s", e.Index, e.Kind, e.RuleID, e.EventID, e.Reason)
}
