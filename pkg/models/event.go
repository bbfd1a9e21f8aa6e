package models

import (
	"maps"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// EntityRef points at a record of the entity store, e.g. {type: "beds", id: "b-12"}.
type EntityRef struct {
	Type string `json:"type" validate:"required"`
	ID   string `json:"id"   validate:"required"`
}

// WorkflowEvent is an immutable fact recorded in the audit log before any rule runs.
// ProcessedAt is the only field written after the event is appended and it is set at most once.
type WorkflowEvent struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"              validate:"required"`
	EventType   string            `json:"event_type"             validate:"required"`
	SourceActor string            `json:"source_actor"           validate:"required"`
	SourceRole  string            `json:"source_role,omitempty"`
	EntityRef   *EntityRef        `json:"entity_ref,omitempty"`
	Payload     map[string]any    `json:"payload"`
	Priority    Priority          `json:"priority"               validate:"required,oneof=low normal high urgent"`
	CreatedAt   time.Time         `json:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	Summary     ProcessingSummary `json:"summary"`
}

// ProcessingSummary is stored next to processed_at once every matched rule has been attempted.
type ProcessingSummary struct {
	RulesMatched     int `json:"rules_matched"`
	ActionsSucceeded int `json:"actions_succeeded"`
	ActionsFailed    int `json:"actions_failed"`
}

func (e *WorkflowEvent) Processed() bool {
	return e.ProcessedAt != nil
}

// Document is the view of the event seen by rule conditions and message templates.
func (e *WorkflowEvent) Document() map[string]any {
	payload := map[string]any{}
	if e.Payload != nil {
		payload = maps.Clone(e.Payload)
	}

	doc := map[string]any{
		"id":           e.ID,
		"tenant_id":    e.TenantID,
		"event_type":   e.EventType,
		"source_actor": e.SourceActor,
		"source_role":  e.SourceRole,
		"priority":     string(e.Priority),
		"payload":      payload,
	}

	if e.EntityRef != nil {
		doc["entity"] = map[string]any{
			"type": e.EntityRef.Type,
			"id":   e.EntityRef.ID,
		}
	}

	return doc
}
