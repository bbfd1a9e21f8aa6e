// Package models defines the core data structures shared by the rule engine and the change feed.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Entity store tables used by wardflow itself.
const (
	EntityWorkflowEvents = "workflow_events"
	EntityWorkflowRules  = "workflow_rules"
	EntityActionLog      = "workflow_action_log"
	EntityTasks          = "tasks"
	EntityNotifications  = "notifications"
	EntityEscalations    = "escalations"
)

// Record is a single row of the entity store. Every record carries an "id" and a "tenant_id".
type Record map[string]any

func (r Record) ID() string {
	return r.String("id")
}

func (r Record) TenantID() string {
	return r.String("tenant_id")
}

// String returns the field as a string, or "" when it is absent or not a string.
func (r Record) String(field string) string {
	value, ok := r[field].(string)
	if !ok {
		return ""
	}

	return value
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}

	return maps.Clone(r)
}

// ToRecord converts a JSON-tagged struct into a Record.
func ToRecord(value any) (Record, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	var record Record

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	return record, nil
}

// FromRecord decodes a Record into a JSON-tagged struct.
func FromRecord(record Record, target any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return fmt.Errorf("failed to decode record into %T: %w", target, err)
	}

	return nil
}
