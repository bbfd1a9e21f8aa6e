// Package persistence provides the tenant-scoped entity store used by the rule engine and its clients.
package persistence

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/google/uuid"
)

// Store is a request/response API over named entity tables. Every record belongs to a tenant
// and reads never cross tenants unless Query.TenantID is left empty by a maintenance job.
type Store interface {
	// Insert assigns an id when missing and stamps created_at and updated_at.
	Insert(ctx context.Context, entityType string, record models.Record) (models.Record, error)
	// Update merges fields into an existing record.
	Update(ctx context.Context, entityType, tenantID, id string, fields map[string]any) (models.Record, error)
	// SetOnce writes field only when it is absent or null and reports whether it did.
	SetOnce(ctx context.Context, entityType, tenantID, id, field string, value any) (bool, error)
	Get(ctx context.Context, entityType, tenantID, id string) (models.Record, error)
	Query(ctx context.Context, entityType string, query Query) ([]models.Record, error)
	Delete(ctx context.Context, entityType, tenantID, id string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Query selects records by top-level field equality. A nil value in Where matches
// records where the field is absent or null.
type Query struct {
	TenantID   string
	Where      map[string]any
	OrderBy    string
	Descending bool
	Limit      int
}

// PrepareInsert normalizes a record for insertion into any backend.
func PrepareInsert(record models.Record, now time.Time) (models.Record, error) {
	normalized, err := models.ToRecord(record)
	if err != nil {
		return nil, err
	}

	if normalized == nil {
		normalized = models.Record{}
	}

	if normalized.TenantID() == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidRecord)
	}

	if normalized.ID() == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate record id: %w", err)
		}

		normalized["id"] = id.String()
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	if _, ok := normalized["created_at"]; !ok {
		normalized["created_at"] = stamp
	}

	normalized["updated_at"] = stamp

	return normalized, nil
}

// PrepareUpdate normalizes update fields. Identity fields cannot be changed.
func PrepareUpdate(fields map[string]any, now time.Time) (map[string]any, error) {
	normalized, err := models.ToRecord(fields)
	if err != nil {
		return nil, err
	}

	if normalized == nil {
		normalized = models.Record{}
	}

	delete(normalized, "id")
	delete(normalized, "tenant_id")
	delete(normalized, "created_at")

	normalized["updated_at"] = now.UTC().Format(time.RFC3339Nano)

	return normalized, nil
}

// MatchesWhere evaluates Query.Where against a record held in memory.
func MatchesWhere(record models.Record, where map[string]any) bool {
	for field, want := range where {
		got := record[field]

		if want == nil {
			if got != nil {
				return false
			}

			continue
		}

		if got == nil || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}

	return true
}

// Apply runs the ordering and limit of a query over records already filtered in memory.
func (q Query) Apply(records []models.Record) []models.Record {
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}

	slices.SortStableFunc(records, func(a, b models.Record) int {
		result := compareValues(a[orderBy], b[orderBy])
		if result == 0 {
			result = cmp.Compare(a.ID(), b.ID())
		}

		if q.Descending {
			return -result
		}

		return result
	})

	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}

	return records
}

func compareValues(a, b any) int {
	left, leftNumber := a.(float64)
	right, rightNumber := b.(float64)

	if leftNumber && rightNumber {
		return cmp.Compare(left, right)
	}

	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
