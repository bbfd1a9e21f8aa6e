package web

import (
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/workflow"
)

// TriggerEventRequest is the body of POST /tenants/:tenant/events. The tenant comes from the path.
type TriggerEventRequest struct {
	EventType   string            `json:"event_type"            validate:"required"`
	SourceActor string            `json:"source_actor"          validate:"required"`
	SourceRole  string            `json:"source_role,omitempty"`
	EntityRef   *models.EntityRef `json:"entity_ref,omitempty"`
	Payload     map[string]any    `json:"payload"`
	Priority    models.Priority   `json:"priority,omitempty"    validate:"omitempty,oneof=low normal high urgent"`
}

func (r TriggerEventRequest) toTrigger(tenantID string) workflow.TriggerRequest {
	return workflow.TriggerRequest{
		TenantID:    tenantID,
		EventType:   r.EventType,
		SourceActor: r.SourceActor,
		SourceRole:  r.SourceRole,
		EntityRef:   r.EntityRef,
		Payload:     r.Payload,
		Priority:    r.Priority,
	}
}

type TriggerEventResponse struct {
	EventID string `json:"event_id"`
}

// EventResponse is a recorded event with the outcome of every action attempted for it.
type EventResponse struct {
	Event   *models.WorkflowEvent   `json:"event"`
	Actions []models.ActionLogEntry `json:"actions"`
}

// RuleRequest is the body for creating or replacing a rule.
type RuleRequest struct {
	Name             string            `json:"name"                  validate:"required,min=3"`
	Description      string            `json:"description,omitempty"`
	TriggerEventType string            `json:"trigger_event_type"    validate:"required"`
	Conditions       map[string]any    `json:"conditions,omitempty"`
	Actions          models.ActionList `json:"actions"               validate:"required,min=1"`
	Active           bool              `json:"active"`
	Priority         int               `json:"priority"`
}

func (r RuleRequest) toRule(tenantID, id string) *models.WorkflowRule {
	return &models.WorkflowRule{
		ID:               id,
		TenantID:         tenantID,
		Name:             r.Name,
		Description:      r.Description,
		TriggerEventType: r.TriggerEventType,
		Conditions:       r.Conditions,
		Actions:          r.Actions,
		Active:           r.Active,
		Priority:         r.Priority,
	}
}
