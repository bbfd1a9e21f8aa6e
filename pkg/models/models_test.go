package models

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRule_JSONKeepsActionVariants(t *testing.T) {
	input := `{
		"id": "r1",
		"tenant_id": "t1",
		"name": "Low oxygen",
		"trigger_event_type": "vitals.recorded",
		"active": true,
		"priority": 10,
		"actions": [
			{"type": "create_task", "target_role": "nurse", "message": "Check patient"},
			{"type": "escalate", "reason": "spo2 below 90", "severity": "critical"},
			{"type": "update_entity_status", "new_status": "critical"},
			{"type": "send_notification", "target_actor": "charge-nurse", "message": "Bed 4", "severity": "warning"}
		]
	}`

	var rule WorkflowRule
	require.NoError(t, json.Unmarshal([]byte(input), &rule))

	require.Len(t, rule.Actions, 4)
	assert.Equal(t, CreateTask{TargetRole: "nurse", Message: "Check patient"}, rule.Actions[0])
	assert.Equal(t, Escalate{Reason: "spo2 below 90", Severity: SeverityCritical}, rule.Actions[1])
	assert.Equal(t, ActionUpdateEntityStatus, rule.Actions[2].Kind())
	assert.Equal(t, SendNotification{TargetActor: "charge-nurse", Message: "Bed 4", Severity: SeverityWarning}, rule.Actions[3])

	body, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"create_task"`)
	assert.Contains(t, string(body), `"target_role":"nurse"`)
	assert.Contains(t, string(body), `"target_actor":"charge-nurse"`)
}

func TestUnmarshalAction_UnknownKind(t *testing.T) {
	_, err := UnmarshalAction([]byte(`{"type":"reboot_hospital"}`))

	assert.ErrorIs(t, err, ErrUnknownActionKind)
}

func TestWorkflowRule_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	rule := &WorkflowRule{
		TenantID:         "t1",
		Name:             "Bed turnover",
		TriggerEventType: "bed.released",
		Actions:          ActionList{CreateTask{TargetRole: "housekeeping", Message: "Clean bed"}},
	}
	require.NoError(t, validate.Struct(rule))

	rule.Actions = ActionList{CreateTask{Message: "nobody to do it"}}
	assert.Error(t, validate.Struct(rule))

	rule.Actions = nil
	assert.Error(t, validate.Struct(rule))
}

func TestSortRules(t *testing.T) {
	rules := []*WorkflowRule{
		{ID: "b", Priority: 1},
		{ID: "c", Priority: 5},
		{ID: "a", Priority: 1},
	}

	SortRules(rules)

	assert.Equal(t, "c", rules[0].ID)
	assert.Equal(t, "a", rules[1].ID)
	assert.Equal(t, "b", rules[2].ID)
}

func TestWorkflowEvent_Document(t *testing.T) {
	event := &WorkflowEvent{
		ID:          "e1",
		TenantID:    "t1",
		EventType:   "bed.released",
		SourceActor: "nurse-1",
		EntityRef:   &EntityRef{Type: "beds", ID: "b12"},
		Payload:     map[string]any{"ward": "icu"},
		Priority:    PriorityHigh,
	}

	doc := event.Document()

	assert.Equal(t, "high", doc["priority"])
	assert.Equal(t, map[string]any{"type": "beds", "id": "b12"}, doc["entity"])
	assert.Equal(t, "icu", doc["payload"].(map[string]any)["ward"])
}

func TestSubscriptionDescriptor_Matches(t *testing.T) {
	descriptor := SubscriptionDescriptor{
		EntityType: "tasks",
		Operations: []Operation{OperationInsert, OperationDelete},
		Filter:     map[string]any{"patient_id": "p1"},
	}

	insert := ChangeNotification{EntityType: "tasks", Operation: OperationInsert, Record: Record{"id": "1", "patient_id": "p1"}}
	otherPatient := ChangeNotification{EntityType: "tasks", Operation: OperationInsert, Record: Record{"id": "2", "patient_id": "p2"}}
	update := ChangeNotification{EntityType: "tasks", Operation: OperationUpdate, Record: Record{"id": "1", "patient_id": "p1"}}
	otherEntity := ChangeNotification{EntityType: "beds", Operation: OperationInsert, Record: Record{"id": "1", "patient_id": "p1"}}
	bareDelete := ChangeNotification{EntityType: "tasks", Operation: OperationDelete, RecordID: "1"}
	deleteOther := ChangeNotification{EntityType: "tasks", Operation: OperationDelete, OldRecord: Record{"id": "2", "patient_id": "p2"}}

	assert.True(t, descriptor.Matches(insert))
	assert.False(t, descriptor.Matches(otherPatient))
	assert.False(t, descriptor.Matches(update))
	assert.False(t, descriptor.Matches(otherEntity))
	assert.True(t, descriptor.Matches(bareDelete))
	assert.False(t, descriptor.Matches(deleteOther))
}

func TestChangeNotification_Validate(t *testing.T) {
	assert.NoError(t, ChangeNotification{EntityType: "tasks", Operation: OperationDelete, RecordID: "1"}.Validate())
	assert.NoError(t, ChangeNotification{EntityType: "tasks", Operation: OperationInsert, Record: Record{"id": "1"}}.Validate())
	assert.ErrorIs(t, ChangeNotification{EntityType: "tasks", Operation: OperationUpdate}.Validate(), ErrInvalidNotification)
	assert.ErrorIs(t, ChangeNotification{Operation: OperationInsert}.Validate(), ErrInvalidNotification)
	assert.ErrorIs(t, ChangeNotification{EntityType: "tasks", Operation: "upsert"}.Validate(), ErrInvalidNotification)
}
