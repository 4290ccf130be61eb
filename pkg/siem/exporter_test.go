package siem

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellwarden/cellwarden/pkg/audit"
)

func newTestEvent(t *testing.T) audit.Event {
	t.Helper()
	e, err := audit.New("ai.toolInvocation", audit.Actor{Type: "ai", ID: "model-a"}, true, map[string]any{"tool": "read_range"})
	require.NoError(t, err)
	return e
}

func TestExporter_Export_PostsJSONWithIdempotencyHeader(t *testing.T) {
	var gotKey, gotContentType string
	var gotStatus int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		gotStatus = http.StatusAccepted
		w.WriteHeader(gotStatus)
	}))
	defer srv.Close()

	exp, err := New(Config{Endpoint: srv.URL, RateLimitPerSec: 100})
	require.NoError(t, err)

	err = exp.Export(context.Background(), "key-123", []audit.Event{newTestEvent(t)})
	require.NoError(t, err)
	assert.Equal(t, "key-123", gotKey)
	assert.Equal(t, "application/json", gotContentType)
}

func TestExporter_Export_ReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	exp, err := New(Config{Endpoint: srv.URL, RateLimitPerSec: 100})
	require.NoError(t, err)

	err = exp.Export(context.Background(), "key-1", []audit.Event{newTestEvent(t)})
	require.Error(t, err)
}

func TestExporter_Export_CEFFormat(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exp, err := New(Config{Endpoint: srv.URL, Format: FormatCEF, RateLimitPerSec: 100})
	require.NoError(t, err)

	require.NoError(t, exp.Export(context.Background(), "key-2", []audit.Event{newTestEvent(t)}))
	assert.Equal(t, "text/plain", gotContentType)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
