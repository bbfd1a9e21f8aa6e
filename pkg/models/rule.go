package models

import (
	"cmp"
	"slices"
	"time"
)

// WorkflowRule maps a trigger event type and optional conditions to an ordered list of actions.
type WorkflowRule struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"                   validate:"required"`
	Name             string         `json:"name"                        validate:"required,min=3"`
	Description      string         `json:"description,omitempty"`
	TriggerEventType string         `json:"trigger_event_type"          validate:"required"`
	Conditions       map[string]any `json:"conditions,omitempty"`
	Actions          ActionList     `json:"actions"                     validate:"required,min=1,dive"`
	Active           bool           `json:"active"`
	Priority         int            `json:"priority"`
	LastTriggeredAt  *time.Time     `json:"last_triggered_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SortRules orders rules by priority descending, then by id ascending.
func SortRules(rules []*WorkflowRule) {
	slices.SortStableFunc(rules, func(a, b *WorkflowRule) int {
		if a.Priority != b.Priority {
			return cmp.Compare(b.Priority, a.Priority)
		}

		return cmp.Compare(a.ID, b.ID)
	})
}
