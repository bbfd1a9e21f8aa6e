package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dukex/wardflow/pkg/actions"
	"github.com/dukex/wardflow/pkg/mocks"
	"github.com/dukex/wardflow/pkg/audit"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence/memory"
	"github.com/dukex/wardflow/pkg/rules"
	"github.com/dukex/wardflow/pkg/web"
	"github.com/dukex/wardflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app    *fiber.App
	engine *workflow.Engine
	rules  *rules.Repository
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	validate := validator.New(validator.WithRequiredStructEnabled())

	store := memory.NewStore(logger, nil)
	auditLog := audit.NewLog(store, logger)
	repo := rules.NewRepository(store, validate, logger)
	engine := workflow.NewEngine(auditLog, repo, actions.NewExecutor(store, nil, logger), logger)

	app := fiber.New()
	web.NewAPIHandlers(engine, auditLog, repo, store, validate).Routes(app)

	return &testApp{app: app, engine: engine, rules: repo}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, content
}

func sampleRule() map[string]any {
	return map[string]any{
		"name":               "Bed turnover",
		"trigger_event_type": "bed.released",
		"active":             true,
		"priority":           5,
		"actions": []map[string]any{
			{"type": "create_task", "target_role": "housekeeping", "message": "Clean {{ .entity.id }}"},
		},
	}
}

func TestAPIHandlers_TriggerEventRunsRules(t *testing.T) {
	a := setupTestApp(t)

	resp, _ := a.do(t, http.MethodPost, "/tenants/h1/rules", sampleRule())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := a.do(t, http.MethodPost, "/tenants/h1/events", web.TriggerEventRequest{
		EventType:   "bed.released",
		SourceActor: "porter-2",
		EntityRef:   &models.EntityRef{Type: "beds", ID: "b7"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var triggered web.TriggerEventResponse
	require.NoError(t, json.Unmarshal(body, &triggered))
	require.NotEmpty(t, triggered.EventID)

	a.engine.Dispatcher().(*workflow.LocalDispatcher).Wait()

	resp, body = a.do(t, http.MethodGet, "/tenants/h1/events/"+triggered.EventID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var event web.EventResponse
	require.NoError(t, json.Unmarshal(body, &event))
	assert.Equal(t, "bed.released", event.Event.EventType)
	assert.Equal(t, models.PriorityNormal, event.Event.Priority)
	require.NotNil(t, event.Event.ProcessedAt)
	assert.Equal(t, 1, event.Event.Summary.RulesMatched)
	require.Len(t, event.Actions, 1)
	assert.Equal(t, models.ActionCreateTask, event.Actions[0].ActionType)

	resp, _ = a.do(t, http.MethodGet, "/tenants/h2/events/"+triggered.EventID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_TriggerEventValidation(t *testing.T) {
	a := setupTestApp(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing event type", body: map[string]any{"source_actor": "nurse-1"}},
		{name: "missing actor", body: map[string]any{"event_type": "x"}},
		{name: "unknown priority", body: map[string]any{"event_type": "x", "source_actor": "a", "priority": "asap"}},
		{name: "not json", body: "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := a.do(t, http.MethodPost, "/tenants/h1/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			assert.Contains(t, string(body), "validation_error")
		})
	}
}

type failingTriggerer struct{}

func (failingTriggerer) Trigger(_ context.Context, req workflow.TriggerRequest) (string, error) {
	return "", &workflow.DispatchFailure{TenantID: req.TenantID, EventType: req.EventType, Err: errors.New("store offline")}
}

func TestAPIHandlers_TriggerEventDispatchFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := memory.NewStore(logger, nil)
	validate := validator.New(validator.WithRequiredStructEnabled())

	app := fiber.New()
	web.NewAPIHandlers(failingTriggerer{}, audit.NewLog(store, logger), rules.NewRepository(store, validate, logger), store, validate).Routes(app)

	payload, err := json.Marshal(web.TriggerEventRequest{EventType: "x", SourceActor: "a"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tenants/h1/events", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "dispatch_failure")
	assert.NotContains(t, string(body), "store offline")
}

func TestAPIHandlers_RuleCRUD(t *testing.T) {
	a := setupTestApp(t)

	resp, body := a.do(t, http.MethodPost, "/tenants/h1/rules", sampleRule())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created models.WorkflowRule
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "h1", created.TenantID)
	assert.Equal(t, models.CreateTask{TargetRole: "housekeeping", Message: "Clean {{ .entity.id }}"}, created.Actions[0])

	update := sampleRule()
	update["name"] = "Bed turnover (night)"
	update["active"] = false

	resp, body = a.do(t, http.MethodPut, "/tenants/h1/rules/"+created.ID, update)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = a.do(t, http.MethodGet, "/tenants/h1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.WorkflowRule
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, "Bed turnover (night)", loaded.Name)
	assert.False(t, loaded.Active)

	resp, body = a.do(t, http.MethodGet, "/tenants/h1/rules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"total_count":1`)

	resp, _ = a.do(t, http.MethodPut, "/tenants/h1/rules/missing", update)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodDelete, "/tenants/h1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/tenants/h1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "rule_not_found")
}

func TestAPIHandlers_CreateRuleValidation(t *testing.T) {
	a := setupTestApp(t)

	noActions := sampleRule()
	delete(noActions, "actions")

	resp, _ := a.do(t, http.MethodPost, "/tenants/h1/rules", noActions)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	badAction := sampleRule()
	badAction["actions"] = []map[string]any{{"type": "send_notification", "message": "hi"}}

	resp, _ = a.do(t, http.MethodPost, "/tenants/h1/rules", badAction)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	a := setupTestApp(t)

	resp, body := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}

func TestAPIHandlers_HealthCheckUnhealthyStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	validate := validator.New(validator.WithRequiredStructEnabled())

	store := &mocks.MockStore{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	repo := rules.NewRepository(store, validate, logger)
	auditLog := audit.NewLog(store, logger)
	engine := workflow.NewEngine(auditLog, repo, actions.NewExecutor(store, nil, logger), logger)

	app := fiber.New()
	web.NewAPIHandlers(engine, auditLog, repo, store, validate).Routes(app)

	a := &testApp{app: app, engine: engine, rules: repo}

	resp, body := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "connection refused")
	store.AssertExpectations(t)
}
