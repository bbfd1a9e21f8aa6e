package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventDocument() map[string]any {
	return map[string]any{
		"event_type":   "vitals.recorded",
		"priority":     "urgent",
		"source_actor": "nurse-7",
		"entity": map[string]any{
			"type": "patients",
			"id":   "p1",
		},
		"payload": map[string]any{
			"ward": "icu",
			"spo2": float64(88),
			"vitals": map[string]any{
				"heart_rate": float64(131),
			},
		},
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[string]any
		want       bool
	}{
		{"empty conditions", nil, true},
		{"dotted equality", map[string]any{"payload.ward": "icu"}, true},
		{"equality mismatch", map[string]any{"payload.ward": "er"}, false},
		{"missing field", map[string]any{"payload.bed": "b1"}, false},
		{"numeric equality across types", map[string]any{"payload.spo2": 88}, true},
		{"list membership", map[string]any{"priority": []any{"high", "urgent"}}, true},
		{"list membership miss", map[string]any{"priority": []any{"low"}}, false},
		{"nested object", map[string]any{"entity": map[string]any{"type": "patients"}}, true},
		{"$in", map[string]any{"priority": map[string]any{"$in": []any{"urgent"}}}, true},
		{"$nin", map[string]any{"priority": map[string]any{"$nin": []any{"urgent"}}}, false},
		{"$ne", map[string]any{"payload.ward": map[string]any{"$ne": "er"}}, true},
		{"$exists true", map[string]any{"payload.vitals": map[string]any{"$exists": true}}, true},
		{"$exists false", map[string]any{"payload.bed": map[string]any{"$exists": false}}, true},
		{"$lt", map[string]any{"payload.spo2": map[string]any{"$lt": 90}}, true},
		{"$gte", map[string]any{"payload.vitals.heart_rate": map[string]any{"$gte": 140}}, false},
		{"range", map[string]any{"payload.vitals.heart_rate": map[string]any{"$gt": 120, "$lte": 131}}, true},
		{"all conditions must hold", map[string]any{"payload.ward": "icu", "priority": "low"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.conditions, eventDocument())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_Schema(t *testing.T) {
	conditions := map[string]any{
		"payload": map[string]any{
			"$schema": map[string]any{
				"type":     "object",
				"required": []any{"ward", "spo2"},
				"properties": map[string]any{
					"spo2": map[string]any{"type": "number", "maximum": 92},
				},
			},
		},
	}

	got, err := Match(conditions, eventDocument())
	require.NoError(t, err)
	assert.True(t, got)

	conditions["payload"].(map[string]any)["$schema"].(map[string]any)["required"] = []any{"bed"}

	got, err = Match(conditions, eventDocument())
	require.NoError(t, err)
	assert.False(t, got)
}

func TestMatch_UnknownOperator(t *testing.T) {
	_, err := Match(map[string]any{"priority": map[string]any{"$regex": "^u"}}, eventDocument())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestLookup(t *testing.T) {
	value, found := Lookup(eventDocument(), "payload.vitals.heart_rate")
	assert.True(t, found)
	assert.InDelta(t, 131, value, 0)

	_, found = Lookup(eventDocument(), "payload.ward.name")
	assert.False(t, found)
}
