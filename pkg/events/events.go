// Package events defines the messages exchanged between wardflow processes over the event bus.
package events

import (
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "wardflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowEventRecordedType is published once an event is durable and waits for rule processing.
	WorkflowEventRecordedType EventType = "workflow.event.recorded"
	// WorkflowEventProcessedType is published by workers after processed_at was written.
	WorkflowEventProcessedType EventType = "workflow.event.processed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TenantID  string    `json:"tenant_id"`
	WorkerID  string    `json:"worker_id,omitempty"`
}

// WorkflowEventRecorded carries enough of the audit record for a worker to reload and process it.
type WorkflowEventRecorded struct {
	BaseEvent

	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Priority  models.Priority `json:"priority"`
}

func (w WorkflowEventRecorded) GetType() EventType {
	return WorkflowEventRecordedType
}

type WorkflowEventProcessed struct {
	BaseEvent

	EventID    string                   `json:"event_id"`
	EventType  string                   `json:"event_type"`
	Summary    models.ProcessingSummary `json:"summary"`
	DurationMs int64                    `json:"duration_ms"`
	Error      string                   `json:"error,omitempty"`
}

func (w WorkflowEventProcessed) GetType() EventType {
	return WorkflowEventProcessedType
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
	}
}

// NewWorkflowEventRecorded builds the bus message announcing a durable workflow event.
func NewWorkflowEventRecorded(event *models.WorkflowEvent) WorkflowEventRecorded {
	return WorkflowEventRecorded{
		BaseEvent: NewBaseEvent(WorkflowEventRecordedType, event.TenantID),
		EventID:   event.ID,
		EventType: event.EventType,
		Priority:  event.Priority,
	}
}
