package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventDocument() map[string]any {
	return map[string]any{
		"event_type":   "vitals.recorded",
		"source_actor": "nurse-7",
		"priority":     "urgent",
		"entity": map[string]any{
			"type": "patients",
			"id":   "p1",
		},
		"payload": map[string]any{
			"patient": "Jane Roe",
			"spo2":    float64(87),
			"beds":    []any{"b1", "b2"},
		},
	}
}

func TestRenderString(t *testing.T) {
	result, err := RenderString("Check {{ .payload.patient }} (SpO2 {{ .payload.spo2 }}%)", eventDocument())
	require.NoError(t, err)
	assert.Equal(t, "Check Jane Roe (SpO2 87%)", result)

	result, err = RenderString("{{ upper .priority }} from {{ .source_actor }}", eventDocument())
	require.NoError(t, err)
	assert.Equal(t, "URGENT from nurse-7", result)
}

func TestRenderString_PlainTextIsUntouched(t *testing.T) {
	result, err := RenderString("Bed ready for cleaning", eventDocument())
	require.NoError(t, err)
	assert.Equal(t, "Bed ready for cleaning", result)
}

func TestRenderString_MissingFieldsRenderEmpty(t *testing.T) {
	result, err := RenderString("Ward: {{ .payload.ward }}", eventDocument())
	require.NoError(t, err)
	assert.Equal(t, "Ward: ", result)

	result, err = RenderString(`Ward: {{ default "unknown" .payload.ward }}`, eventDocument())
	require.NoError(t, err)
	assert.Equal(t, "Ward: unknown", result)
}

func TestRender_TypedResults(t *testing.T) {
	result, err := Render("{{ .payload.spo2 }}", eventDocument())
	require.NoError(t, err)
	assert.InDelta(t, 87.0, result, 0)

	result, err = Render(`{"patient": "{{ .entity.id }}", "beds": {{ len .payload.beds }}}`, eventDocument())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"patient": "p1", "beds": 2.0}, result)

	result, err = Render("{{ if eq .priority \"urgent\" }}true{{ else }}false{{ end }}", eventDocument())
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = Render("42", eventDocument())
	require.NoError(t, err)
	assert.Equal(t, "42", result)
}

func TestRender_ErrorHandling(t *testing.T) {
	_, err := Render("{{ nonexistent.field }}", eventDocument())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")

	_, err = Render(`{{ "{" }} broken`, eventDocument())
	assert.NoError(t, err)
}

func TestRenderValues(t *testing.T) {
	values := map[string]any{
		"patient_id": "{{ .entity.id }}",
		"spo2":       "{{ .payload.spo2 }}",
		"static":     5,
		"nested": map[string]any{
			"who": "{{ .source_actor }}",
		},
		"list": []any{"{{ .priority }}", true},
	}

	rendered, err := RenderValues(values, eventDocument())
	require.NoError(t, err)

	assert.Equal(t, "p1", rendered["patient_id"])
	assert.InDelta(t, 87.0, rendered["spo2"], 0)
	assert.Equal(t, 5, rendered["static"])
	assert.Equal(t, map[string]any{"who": "nurse-7"}, rendered["nested"])
	assert.Equal(t, []any{"urgent", true}, rendered["list"])

	empty, err := RenderValues(nil, eventDocument())
	require.NoError(t, err)
	assert.Nil(t, empty)
}
