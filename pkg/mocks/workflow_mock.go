package mocks

import (
	"context"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockAuditLog is a mock implementation of workflow.AuditLog interface.
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Append(ctx context.Context, event *models.WorkflowEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockAuditLog) RecordAction(ctx context.Context, entry models.ActionLogEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockAuditLog) Complete(ctx context.Context, event *models.WorkflowEvent, summary models.ProcessingSummary, at time.Time) error {
	args := m.Called(ctx, event, summary, at)

	return args.Error(0)
}

// MockRuleSource is a mock implementation of workflow.RuleSource interface.
type MockRuleSource struct {
	mock.Mock
}

func (m *MockRuleSource) ActiveRules(ctx context.Context, tenantID, eventType string) ([]*models.WorkflowRule, error) {
	args := m.Called(ctx, tenantID, eventType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRule), args.Error(1)
}

func (m *MockRuleSource) Touch(ctx context.Context, rule *models.WorkflowRule, at time.Time) error {
	args := m.Called(ctx, rule, at)

	return args.Error(0)
}

// MockActionExecutor is a mock implementation of workflow.ActionExecutor interface.
type MockActionExecutor struct {
	mock.Mock
}

func (m *MockActionExecutor) Execute(ctx context.Context, action models.WorkflowAction, event *models.WorkflowEvent) models.ActionOutcome {
	args := m.Called(ctx, action, event)

	return args.Get(0).(models.ActionOutcome)
}

// MockDispatcher is a mock implementation of workflow.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event *models.WorkflowEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}
