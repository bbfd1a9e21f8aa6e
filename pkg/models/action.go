package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type ActionKind string

const (
	ActionCreateTask             ActionKind = "create_task"
	ActionSendNotification       ActionKind = "send_notification"
	ActionUpdateEntityStatus     ActionKind = "update_entity_status"
	ActionInvokeExternalFunction ActionKind = "invoke_external_function"
	ActionEscalate               ActionKind = "escalate"
)

var ErrUnknownActionKind = errors.New("unknown action kind")

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// WorkflowAction is the closed set of side effects a rule can request.
// The unexported marker keeps the variants limited to this package.
type WorkflowAction interface {
	Kind() ActionKind
	isWorkflowAction()
}

type CreateTask struct {
	TargetRole  string         `json:"target_role,omitempty"  validate:"required_without=TargetActor"`
	TargetActor string         `json:"target_actor,omitempty" validate:"required_without=TargetRole"`
	Message     string         `json:"message"                validate:"required"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type SendNotification struct {
	TargetActor string   `json:"target_actor" validate:"required"`
	Message     string   `json:"message"      validate:"required"`
	Severity    Severity `json:"severity"     validate:"required,oneof=info warning critical"`
}

// UpdateEntityStatus falls back to the event's entity_ref when EntityRef is nil.
type UpdateEntityStatus struct {
	EntityRef *EntityRef `json:"entity_ref,omitempty"`
	NewStatus string     `json:"new_status" validate:"required"`
}

type InvokeExternalFunction struct {
	FunctionName string         `json:"function_name" validate:"required"`
	Args         map[string]any `json:"args,omitempty"`
}

type Escalate struct {
	Reason   string   `json:"reason"   validate:"required"`
	Severity Severity `json:"severity" validate:"required,oneof=info warning critical"`
}

func (CreateTask) Kind() ActionKind             { return ActionCreateTask }
func (SendNotification) Kind() ActionKind       { return ActionSendNotification }
func (UpdateEntityStatus) Kind() ActionKind     { return ActionUpdateEntityStatus }
func (InvokeExternalFunction) Kind() ActionKind { return ActionInvokeExternalFunction }
func (Escalate) Kind() ActionKind               { return ActionEscalate }

func (CreateTask) isWorkflowAction()             {}
func (SendNotification) isWorkflowAction()       {}
func (UpdateEntityStatus) isWorkflowAction()     {}
func (InvokeExternalFunction) isWorkflowAction() {}
func (Escalate) isWorkflowAction()               {}

// ActionList serializes actions as objects tagged with a "type" field.
type ActionList []WorkflowAction

func (l ActionList) MarshalJSON() ([]byte, error) {
	encoded := make([]json.RawMessage, 0, len(l))

	for _, action := range l {
		body, err := MarshalAction(action)
		if err != nil {
			return nil, err
		}

		encoded = append(encoded, body)
	}

	return json.Marshal(encoded)
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	actions := make(ActionList, 0, len(raw))

	for i, body := range raw {
		action, err := UnmarshalAction(body)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}

		actions = append(actions, action)
	}

	*l = actions

	return nil
}

func MarshalAction(action WorkflowAction) ([]byte, error) {
	switch a := action.(type) {
	case CreateTask:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			CreateTask
		}{a.Kind(), a})
	case SendNotification:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			SendNotification
		}{a.Kind(), a})
	case UpdateEntityStatus:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			UpdateEntityStatus
		}{a.Kind(), a})
	case InvokeExternalFunction:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			InvokeExternalFunction
		}{a.Kind(), a})
	case Escalate:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			Escalate
		}{a.Kind(), a})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownActionKind, action)
	}
}

func UnmarshalAction(data []byte) (WorkflowAction, error) {
	var envelope struct {
		Type ActionKind `json:"type"`
	}

	err := json.Unmarshal(data, &envelope)
	if err != nil {
		return nil, err
	}

	switch envelope.Type {
	case ActionCreateTask:
		return decodeAction[CreateTask](data)
	case ActionSendNotification:
		return decodeAction[SendNotification](data)
	case ActionUpdateEntityStatus:
		return decodeAction[UpdateEntityStatus](data)
	case ActionInvokeExternalFunction:
		return decodeAction[InvokeExternalFunction](data)
	case ActionEscalate:
		return decodeAction[Escalate](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionKind, envelope.Type)
	}
}

func decodeAction[T WorkflowAction](data []byte) (WorkflowAction, error) {
	var action T

	err := json.Unmarshal(data, &action)
	if err != nil {
		return nil, err
	}

	return action, nil
}

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// ActionOutcome is the result of executing one action. A failed outcome never aborts sibling actions.
type ActionOutcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

func Succeeded() ActionOutcome {
	return ActionOutcome{Status: OutcomeSucceeded}
}

func Failed(reason string) ActionOutcome {
	return ActionOutcome{Status: OutcomeFailed, Reason: reason}
}

func (o ActionOutcome) OK() bool {
	return o.Status == OutcomeSucceeded
}

// ActionLogEntry records one executed action of one matched rule.
type ActionLogEntry struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	EventID     string        `json:"event_id"`
	RuleID      string        `json:"rule_id"`
	ActionIndex int           `json:"action_index"`
	ActionType  ActionKind    `json:"action_type"`
	Status      OutcomeStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	ExecutedAt  time.Time     `json:"executed_at"`
}
