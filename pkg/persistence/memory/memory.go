// Package memory provides an in-process entity store for tests and single-node deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

// Function is a server-side function callable through Invoke.
type Function func(ctx context.Context, tenantID string, args map[string]any) (map[string]any, error)

// Store keeps every table in memory and optionally publishes each mutation to a change feed.
type Store struct {
	logger    *slog.Logger
	publisher changefeed.Publisher
	now       func() time.Time

	mu     sync.RWMutex
	tables map[string]map[string]models.Record

	// feedMu is taken before mu is released so notifications leave in mutation order.
	feedMu sync.Mutex

	functionsMu sync.RWMutex
	functions   map[string]Function
}

// NewStore creates an empty store. publisher may be nil.
func NewStore(logger *slog.Logger, publisher changefeed.Publisher) *Store {
	return &Store{
		logger:    logger,
		publisher: publisher,
		now:       time.Now,
		tables:    make(map[string]map[string]models.Record),
		functions: make(map[string]Function),
	}
}

// RegisterFunction exposes fn under name for Invoke.
func (s *Store) RegisterFunction(name string, fn Function) {
	s.functionsMu.Lock()
	defer s.functionsMu.Unlock()

	s.functions[name] = fn
}

func (s *Store) Invoke(ctx context.Context, tenantID, name string, args map[string]any) (map[string]any, error) {
	s.functionsMu.RLock()
	fn, ok := s.functions[name]
	s.functionsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("function %q is not registered", name)
	}

	return fn(ctx, tenantID, args)
}

func (s *Store) Insert(ctx context.Context, entityType string, record models.Record) (models.Record, error) {
	prepared, err := persistence.PrepareInsert(record, s.now())
	if err != nil {
		return nil, persistence.NewRecordError("Insert", entityType, record.ID(), err)
	}

	s.mu.Lock()

	table := s.table(entityType)
	if _, exists := table[prepared.ID()]; exists {
		s.mu.Unlock()

		return nil, persistence.NewRecordError("Insert", entityType, prepared.ID(), persistence.ErrRecordExists)
	}

	table[prepared.ID()] = prepared

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   prepared.TenantID(),
		EntityType: entityType,
		Operation:  models.OperationInsert,
		Record:     prepared.Clone(),
	})

	return prepared.Clone(), nil
}

func (s *Store) Update(ctx context.Context, entityType, tenantID, id string, fields map[string]any) (models.Record, error) {
	prepared, err := persistence.PrepareUpdate(fields, s.now())
	if err != nil {
		return nil, persistence.NewRecordError("Update", entityType, id, err)
	}

	s.mu.Lock()

	current, ok := s.lookup(entityType, tenantID, id)
	if !ok {
		s.mu.Unlock()

		return nil, persistence.NewRecordError("Update", entityType, id, persistence.ErrRecordNotFound)
	}

	updated := current.Clone()
	maps.Copy(updated, prepared)
	s.tables[entityType][id] = updated

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   tenantID,
		EntityType: entityType,
		Operation:  models.OperationUpdate,
		Record:     updated.Clone(),
		OldRecord:  current,
	})

	return updated.Clone(), nil
}

func (s *Store) SetOnce(ctx context.Context, entityType, tenantID, id, field string, value any) (bool, error) {
	normalized, err := models.ToRecord(map[string]any{field: value})
	if err != nil {
		return false, persistence.NewRecordError("SetOnce", entityType, id, err)
	}

	s.mu.Lock()

	current, ok := s.lookup(entityType, tenantID, id)
	if !ok {
		s.mu.Unlock()

		return false, persistence.NewRecordError("SetOnce", entityType, id, persistence.ErrRecordNotFound)
	}

	if current[field] != nil {
		s.mu.Unlock()

		return false, nil
	}

	updated := current.Clone()
	updated[field] = normalized[field]
	updated["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
	s.tables[entityType][id] = updated

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   tenantID,
		EntityType: entityType,
		Operation:  models.OperationUpdate,
		Record:     updated.Clone(),
		OldRecord:  current,
	})

	return true, nil
}

func (s *Store) Get(_ context.Context, entityType, tenantID, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.lookup(entityType, tenantID, id)
	if !ok {
		return nil, persistence.NewRecordError("Get", entityType, id, persistence.ErrRecordNotFound)
	}

	return record.Clone(), nil
}

func (s *Store) Query(_ context.Context, entityType string, query persistence.Query) ([]models.Record, error) {
	s.mu.RLock()

	records := make([]models.Record, 0)

	for _, record := range s.tables[entityType] {
		if query.TenantID != "" && record.TenantID() != query.TenantID {
			continue
		}

		if !persistence.MatchesWhere(record, query.Where) {
			continue
		}

		records = append(records, record.Clone())
	}

	s.mu.RUnlock()

	return query.Apply(records), nil
}

func (s *Store) Delete(ctx context.Context, entityType, tenantID, id string) error {
	s.mu.Lock()

	current, ok := s.lookup(entityType, tenantID, id)
	if !ok {
		s.mu.Unlock()

		return persistence.NewRecordError("Delete", entityType, id, persistence.ErrRecordNotFound)
	}

	delete(s.tables[entityType], id)

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   tenantID,
		EntityType: entityType,
		Operation:  models.OperationDelete,
		RecordID:   id,
		OldRecord:  current,
	})

	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) table(entityType string) map[string]models.Record {
	table, ok := s.tables[entityType]
	if !ok {
		table = make(map[string]models.Record)
		s.tables[entityType] = table
	}

	return table
}

func (s *Store) lookup(entityType, tenantID, id string) (models.Record, bool) {
	record, ok := s.tables[entityType][id]
	if !ok || record.TenantID() != tenantID {
		return nil, false
	}

	return record, true
}

// publishLocked must be called with mu held; it releases mu.
func (s *Store) publishLocked(ctx context.Context, notification models.ChangeNotification) {
	if s.publisher == nil {
		s.mu.Unlock()

		return
	}

	s.feedMu.Lock()
	s.mu.Unlock()

	defer s.feedMu.Unlock()

	err := s.publisher.Publish(ctx, notification)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change notification",
			"entity_type", notification.EntityType,
			"operation", notification.Operation,
			"record_id", notification.ID(),
			"error", err)
	}
}
