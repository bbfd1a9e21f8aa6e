package memory

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu            sync.Mutex
	notifications []models.ChangeNotification
}

func (p *recordingPublisher) Publish(_ context.Context, n models.ChangeNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.notifications = append(p.notifications, n)

	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStore_Conformance(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		t.Helper()

		return NewStore(testLogger(), nil)
	})
}

func TestStore_PublishesChanges(t *testing.T) {
	publisher := &recordingPublisher{}
	store := NewStore(testLogger(), publisher)
	ctx := context.Background()

	_, err := store.Insert(ctx, "tasks", models.Record{"id": "t-1", "tenant_id": "h1", "status": "open"})
	require.NoError(t, err)

	_, err = store.Update(ctx, "tasks", "h1", "t-1", map[string]any{"status": "done"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "tasks", "h1", "t-1"))

	require.Len(t, publisher.notifications, 3)

	insert := publisher.notifications[0]
	assert.Equal(t, models.OperationInsert, insert.Operation)
	assert.Equal(t, "h1", insert.TenantID)
	assert.Equal(t, "open", insert.Record["status"])

	update := publisher.notifications[1]
	assert.Equal(t, models.OperationUpdate, update.Operation)
	assert.Equal(t, "done", update.Record["status"])
	assert.Equal(t, "open", update.OldRecord["status"])

	deletion := publisher.notifications[2]
	assert.Equal(t, models.OperationDelete, deletion.Operation)
	assert.Equal(t, "t-1", deletion.ID())
	assert.NoError(t, deletion.Validate())
}

func TestStore_ReturnedRecordsAreCopies(t *testing.T) {
	store := NewStore(testLogger(), nil)
	ctx := context.Background()

	inserted, err := store.Insert(ctx, "tasks", models.Record{"id": "a", "tenant_id": "h1", "status": "open"})
	require.NoError(t, err)

	inserted["status"] = "tampered"

	loaded, err := store.Get(ctx, "tasks", "h1", "a")
	require.NoError(t, err)
	assert.Equal(t, "open", loaded["status"])
}

func TestStore_Invoke(t *testing.T) {
	store := NewStore(testLogger(), nil)

	store.RegisterFunction("page_on_call", func(_ context.Context, tenantID string, args map[string]any) (map[string]any, error) {
		return map[string]any{"tenant": tenantID, "paged": args["role"]}, nil
	})

	result, err := store.Invoke(context.Background(), "h1", "page_on_call", map[string]any{"role": "surgeon"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tenant": "h1", "paged": "surgeon"}, result)

	_, err = store.Invoke(context.Background(), "h1", "missing", nil)
	assert.Error(t, err)
}
