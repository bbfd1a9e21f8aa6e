// Package file provides file-based persistence where every record is a JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/wardflow/pkg/changefeed"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

// Store lays records out as <root>/<entity type>/<tenant>/<id>.json.
type Store struct {
	root      string
	logger    *slog.Logger
	publisher changefeed.Publisher
	now       func() time.Time

	mu     sync.RWMutex
	feedMu sync.Mutex
}

// NewStore creates a store rooted at root, which may carry a file:// prefix. publisher may be nil.
func NewStore(root string, logger *slog.Logger, publisher changefeed.Publisher) (*Store, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence root %s: %w", cleanRoot, err)
	}

	return &Store{
		root:      cleanRoot,
		logger:    logger,
		publisher: publisher,
		now:       time.Now,
	}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (s *Store) Insert(ctx context.Context, entityType string, record models.Record) (models.Record, error) {
	prepared, err := persistence.PrepareInsert(record, s.now())
	if err != nil {
		return nil, persistence.NewRecordError("Insert", entityType, record.ID(), err)
	}

	s.mu.Lock()

	path := s.recordPath(entityType, prepared.TenantID(), prepared.ID())
	if _, err := os.Stat(path); err == nil {
		s.mu.Unlock()

		return nil, persistence.NewRecordError("Insert", entityType, prepared.ID(), persistence.ErrRecordExists)
	}

	err = s.write(path, prepared)
	if err != nil {
		s.mu.Unlock()

		return nil, persistence.NewRecordError("Insert", entityType, prepared.ID(), err)
	}

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   prepared.TenantID(),
		EntityType: entityType,
		Operation:  models.OperationInsert,
		Record:     prepared,
	})

	return prepared.Clone(), nil
}

func (s *Store) Update(ctx context.Context, entityType, tenantID, id string, fields map[string]any) (models.Record, error) {
	prepared, err := persistence.PrepareUpdate(fields, s.now())
	if err != nil {
		return nil, persistence.NewRecordError("Update", entityType, id, err)
	}

	s.mu.Lock()

	current, err := s.read(s.recordPath(entityType, tenantID, id))
	if err != nil {
		s.mu.Unlock()

		return nil, persistence.NewRecordError("Update", entityType, id, err)
	}

	updated := current.Clone()
	maps.Copy(updated, prepared)

	err = s.write(s.recordPath(entityType, tenantID, id), updated)
	if err != nil {
		s.mu.Unlock()

		return nil, persistence.NewRecordError("Update", entityType, id, err)
	}

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   tenantID,
		EntityType: entityType,
		Operation:  models.OperationUpdate,
		Record:     updated,
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

	path := s.recordPath(entityType, tenantID, id)

	current, err := s.read(path)
	if err != nil {
		s.mu.Unlock()

		return false, persistence.NewRecordError("SetOnce", entityType, id, err)
	}

	if current[field] != nil {
		s.mu.Unlock()

		return false, nil
	}

	updated := current.Clone()
	updated[field] = normalized[field]
	updated["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)

	err = s.write(path, updated)
	if err != nil {
		s.mu.Unlock()

		return false, persistence.NewRecordError("SetOnce", entityType, id, err)
	}

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   tenantID,
		EntityType: entityType,
		Operation:  models.OperationUpdate,
		Record:     updated,
		OldRecord:  current,
	})

	return true, nil
}

func (s *Store) Get(_ context.Context, entityType, tenantID, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.read(s.recordPath(entityType, tenantID, id))
	if err != nil {
		return nil, persistence.NewRecordError("Get", entityType, id, err)
	}

	return record, nil
}

func (s *Store) Query(_ context.Context, entityType string, query persistence.Query) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern := filepath.Join(s.root, url.PathEscape(entityType), "*", "*.json")
	if query.TenantID != "" {
		pattern = filepath.Join(s.root, url.PathEscape(entityType), url.PathEscape(query.TenantID), "*.json")
	}

	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", entityType, err)
	}

	records := make([]models.Record, 0, len(files))

	for _, file := range files {
		record, err := s.read(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}

		if persistence.MatchesWhere(record, query.Where) {
			records = append(records, record)
		}
	}

	return query.Apply(records), nil
}

func (s *Store) Delete(ctx context.Context, entityType, tenantID, id string) error {
	s.mu.Lock()

	path := s.recordPath(entityType, tenantID, id)

	current, err := s.read(path)
	if err != nil {
		s.mu.Unlock()

		return persistence.NewRecordError("Delete", entityType, id, err)
	}

	err = os.Remove(path)
	if err != nil {
		s.mu.Unlock()

		return persistence.NewRecordError("Delete", entityType, id, err)
	}

	s.publishLocked(ctx, models.ChangeNotification{
		TenantID:   tenantID,
		EntityType: entityType,
		Operation:  models.OperationDelete,
		RecordID:   id,
		OldRecord:  current,
	})

	return nil
}

func (s *Store) recordPath(entityType, tenantID, id string) string {
	return filepath.Join(s.root, url.PathEscape(entityType), url.PathEscape(tenantID), url.PathEscape(id)+".json")
}

func (s *Store) read(path string) (models.Record, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.ErrRecordNotFound
		}

		return nil, err
	}

	var record models.Record

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return record, nil
}

func (s *Store) write(path string, record models.Record) error {
	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"

	err = os.WriteFile(tmp, body, 0o600)
	if err != nil {
		return err
	}

	return os.Rename(tmp, path)
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
