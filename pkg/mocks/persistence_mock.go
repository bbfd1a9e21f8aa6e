package mocks

import (
	"context"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of persistence.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, entityType string, record models.Record) (models.Record, error) {
	args := m.Called(ctx, entityType, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(models.Record), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, entityType, tenantID, id string, fields map[string]any) (models.Record, error) {
	args := m.Called(ctx, entityType, tenantID, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(models.Record), args.Error(1)
}

func (m *MockStore) SetOnce(ctx context.Context, entityType, tenantID, id, field string, value any) (bool, error) {
	args := m.Called(ctx, entityType, tenantID, id, field, value)

	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, entityType, tenantID, id string) (models.Record, error) {
	args := m.Called(ctx, entityType, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(models.Record), args.Error(1)
}

func (m *MockStore) Query(ctx context.Context, entityType string, query persistence.Query) ([]models.Record, error) {
	args := m.Called(ctx, entityType, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Record), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, entityType, tenantID, id string) error {
	args := m.Called(ctx, entityType, tenantID, id)

	return args.Error(0)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
