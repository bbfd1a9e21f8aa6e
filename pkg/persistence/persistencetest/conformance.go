// Package persistencetest holds the behaviour every persistence.Store backend must share.
package persistencetest

import (
	"context"
	"testing"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the persistence.Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Store) {
	t.Helper()

	t.Run("insert assigns id and timestamps", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		record, err := store.Insert(ctx, "tasks", models.Record{"tenant_id": "t1", "message": "check bed"})
		require.NoError(t, err)

		assert.NotEmpty(t, record.ID())
		assert.NotEmpty(t, record["created_at"])
		assert.NotEmpty(t, record["updated_at"])

		loaded, err := store.Get(ctx, "tasks", "t1", record.ID())
		require.NoError(t, err)
		assert.Equal(t, "check bed", loaded["message"])
	})

	t.Run("insert rejects duplicate ids and missing tenant", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "tasks", models.Record{"id": "a", "tenant_id": "t1"})
		require.NoError(t, err)

		_, err = store.Insert(ctx, "tasks", models.Record{"id": "a", "tenant_id": "t1"})
		assert.True(t, persistence.IsRecordExists(err))

		_, err = store.Insert(ctx, "tasks", models.Record{"id": "b"})
		assert.ErrorIs(t, err, persistence.ErrInvalidRecord)
	})

	t.Run("reads are tenant scoped", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "tasks", models.Record{"id": "a", "tenant_id": "t1"})
		require.NoError(t, err)

		_, err = store.Get(ctx, "tasks", "t2", "a")
		assert.True(t, persistence.IsRecordNotFound(err))

		records, err := store.Query(ctx, "tasks", persistence.Query{TenantID: "t2"})
		require.NoError(t, err)
		assert.Empty(t, records)

		_, err = store.Update(ctx, "tasks", "t2", "a", map[string]any{"status": "done"})
		assert.True(t, persistence.IsRecordNotFound(err))
	})

	t.Run("update merges fields and keeps identity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "beds", models.Record{"id": "b1", "tenant_id": "t1", "ward": "icu", "status": "occupied"})
		require.NoError(t, err)

		updated, err := store.Update(ctx, "beds", "t1", "b1", map[string]any{"status": "cleaning", "id": "other"})
		require.NoError(t, err)

		assert.Equal(t, "b1", updated.ID())
		assert.Equal(t, "icu", updated["ward"])
		assert.Equal(t, "cleaning", updated["status"])
	})

	t.Run("set once writes a field only when null", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "workflow_events", models.Record{"id": "e1", "tenant_id": "t1", "processed_at": nil})
		require.NoError(t, err)

		written, err := store.SetOnce(ctx, "workflow_events", "t1", "e1", "processed_at", "2026-01-01T00:00:00Z")
		require.NoError(t, err)
		assert.True(t, written)

		written, err = store.SetOnce(ctx, "workflow_events", "t1", "e1", "processed_at", "2027-01-01T00:00:00Z")
		require.NoError(t, err)
		assert.False(t, written)

		record, err := store.Get(ctx, "workflow_events", "t1", "e1")
		require.NoError(t, err)
		assert.Equal(t, "2026-01-01T00:00:00Z", record["processed_at"])

		_, err = store.SetOnce(ctx, "workflow_events", "t1", "missing", "processed_at", "x")
		assert.True(t, persistence.IsRecordNotFound(err))
	})

	t.Run("query filters orders and limits", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, record := range []models.Record{
			{"id": "r1", "tenant_id": "t1", "trigger_event_type": "bed.released", "active": true, "priority": 1},
			{"id": "r2", "tenant_id": "t1", "trigger_event_type": "bed.released", "active": false, "priority": 5},
			{"id": "r3", "tenant_id": "t1", "trigger_event_type": "bed.released", "active": true, "priority": 10},
			{"id": "r4", "tenant_id": "t1", "trigger_event_type": "vitals.recorded", "active": true, "priority": 3},
			{"id": "r5", "tenant_id": "t2", "trigger_event_type": "bed.released", "active": true, "priority": 7},
		} {
			_, err := store.Insert(ctx, "workflow_rules", record)
			require.NoError(t, err)
		}

		records, err := store.Query(ctx, "workflow_rules", persistence.Query{
			TenantID:   "t1",
			Where:      map[string]any{"trigger_event_type": "bed.released", "active": true},
			OrderBy:    "priority",
			Descending: true,
		})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "r3", records[0].ID())
		assert.Equal(t, "r1", records[1].ID())

		records, err = store.Query(ctx, "workflow_rules", persistence.Query{Where: map[string]any{"trigger_event_type": "bed.released"}, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, records, 4)

		records, err = store.Query(ctx, "workflow_rules", persistence.Query{TenantID: "t1", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("query matches null fields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "workflow_events", models.Record{"id": "e1", "tenant_id": "t1"})
		require.NoError(t, err)
		_, err = store.Insert(ctx, "workflow_events", models.Record{"id": "e2", "tenant_id": "t1", "processed_at": "2026-01-01T00:00:00Z"})
		require.NoError(t, err)

		records, err := store.Query(ctx, "workflow_events", persistence.Query{Where: map[string]any{"processed_at": nil}})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "e1", records[0].ID())
	})

	t.Run("delete removes the record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "tasks", models.Record{"id": "a", "tenant_id": "t1"})
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "tasks", "t1", "a"))

		_, err = store.Get(ctx, "tasks", "t1", "a")
		assert.True(t, persistence.IsRecordNotFound(err))

		err = store.Delete(ctx, "tasks", "t1", "a")
		assert.True(t, persistence.IsRecordNotFound(err))
	})

	t.Run("health check", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.HealthCheck(context.Background()))
	})
}
