package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflowEventRecorded(t *testing.T) {
	event := &models.WorkflowEvent{
		ID:        "e1",
		TenantID:  "h1",
		EventType: "patient_check_in",
		Priority:  models.PriorityHigh,
	}

	recorded := NewWorkflowEventRecorded(event)

	assert.Equal(t, WorkflowEventRecordedType, recorded.GetType())
	assert.Equal(t, WorkflowEventRecordedType, recorded.Type)
	assert.Equal(t, "h1", recorded.TenantID)
	assert.Equal(t, "e1", recorded.EventID)
	assert.Equal(t, "patient_check_in", recorded.EventType)
	assert.NotEmpty(t, recorded.ID)
	assert.False(t, recorded.Timestamp.IsZero())
}

func TestWorkflowEventProcessed_JSON(t *testing.T) {
	processed := WorkflowEventProcessed{
		BaseEvent: NewBaseEvent(WorkflowEventProcessedType, "h1"),
		EventID:   "e1",
		Summary:   models.ProcessingSummary{RulesMatched: 1, ActionsSucceeded: 2},
	}

	data, err := json.Marshal(processed)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "workflow.event.processed", decoded["type"])
	assert.Equal(t, "h1", decoded["tenant_id"])
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, map[string]any{
		"rules_matched":     float64(1),
		"actions_succeeded": float64(2),
		"actions_failed":    float64(0),
	}, decoded["summary"])
}
