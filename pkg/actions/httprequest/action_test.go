package httprequest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukex/docstates/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executionContext() *models.ExecutionContext {
	return &models.ExecutionContext{
		Instance: &models.WorkflowInstance{ID: "i1", DocumentID: "doc-1", Context: map[string]any{}},
		Values: map[string]any{
			"document":                  map[string]any{"id": "doc-1", "label": "Invoice"},
			"workflow_instance":         map[string]any{"current_state": map[string]any{"label": "Review"}},
			"workflow_instance_context": map[string]any{},
		},
	}
}

func TestNewAction(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr error
	}{
		{name: "missing url", config: map[string]any{}, wantErr: ErrHTTPRequestURLInvalid},
		{name: "bad method", config: map[string]any{"url": "http://x", "method": "TRACE"}, wantErr: ErrHTTPMethodInvalid},
		{name: "valid", config: map[string]any{"url": "http://x", "method": "put"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := NewAction(tt.config)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, http.MethodPut, action.Method)
			assert.Equal(t, 1, action.Retry.Attempts)
		})
	}

	_, err := NewAction(map[string]any{"url": "http://x/{{ .document"})
	require.Error(t, err)
}

func TestAction_Execute(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/doc-1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		payload, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(payload, &received)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted": true}`))
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":               server.URL + "/documents/{{.document.id}}",
		"headers":           map[string]any{"X-Token": "secret"},
		"body":              `{"state": "{{.workflow_instance.current_state.label}}"}`,
		"store_response_as": "webhook",
	})
	require.NoError(t, err)

	execCtx := executionContext()
	require.NoError(t, action.Execute(context.Background(), execCtx, slog.Default()))

	assert.Equal(t, "Review", received["state"])

	stored := execCtx.Instance.Context["webhook"].(map[string]any)
	assert.Equal(t, http.StatusOK, stored["status_code"])
	assert.Equal(t, map[string]any{"accepted": true}, stored["body"])
}

func TestAction_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": 3, "delay": 1},
	})
	require.NoError(t, err)

	require.NoError(t, action.Execute(context.Background(), executionContext(), slog.Default()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAction_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": 3.0, "delay": 1.0},
	})
	require.NoError(t, err)

	err = action.Execute(context.Background(), executionContext(), slog.Default())
	require.ErrorIs(t, err, ErrHTTPClientError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAction_ServerErrorAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{"url": server.URL, "retry": map[string]any{"attempts": 2, "delay": 1}})
	require.NoError(t, err)

	err = action.Execute(context.Background(), executionContext(), slog.Default())
	require.ErrorIs(t, err, ErrHTTPServerError)
}

func TestActionFactory(t *testing.T) {
	factory := NewActionFactory()

	assert.Equal(t, "http_request", factory.ID())
	assert.Equal(t, []string{"url"}, factory.Schema()["required"])

	action, err := factory.Create(map[string]any{"url": "http://example.com"})
	require.NoError(t, err)
	assert.IsType(t, &Action{}, action)
}
