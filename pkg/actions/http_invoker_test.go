package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPInvoker_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/functions/page_on_call", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body invokeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "h1", body.TenantID)
		assert.Equal(t, "surgeon", body.Args["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"paged": true}`))
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(server.URL+"/", "secret", 0, testLogger())

	result, err := invoker.Invoke(context.Background(), "h1", "page_on_call", map[string]any{"role": "surgeon"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"paged": true}, result)
}

func TestHTTPInvoker_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown function", http.StatusNotFound)
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(server.URL, "", 3, testLogger())

	_, err := invoker.Invoke(context.Background(), "h1", "missing", nil)
	require.ErrorIs(t, err, ErrFunctionFailed)
	assert.Contains(t, err.Error(), "unknown function")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPInvoker_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(server.URL, "", 1, testLogger())

	result, err := invoker.Invoke(context.Background(), "h1", "flaky", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result)
	assert.Equal(t, int32(2), calls.Load())
}
