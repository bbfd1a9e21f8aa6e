package file

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewStore("file://"+t.TempDir(), logger, nil)
	require.NoError(t, err)

	return store
}

func TestStore_Conformance(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		t.Helper()

		return newTestStore(t)
	})
}

func TestStore_Layout(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Insert(context.Background(), "tasks", models.Record{"id": "a/b", "tenant_id": "h1"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(store.root, "tasks", "h1", "a%2Fb.json"))
	assert.NoError(t, err)
}

func TestStore_HealthCheckMissingRoot(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.RemoveAll(store.root))

	assert.Error(t, store.HealthCheck(context.Background()))
}
