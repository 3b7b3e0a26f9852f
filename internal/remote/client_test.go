package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "key", "secret", srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.sleepFunc = noopSleep

	return c, srv
}

func TestClientGetNotFoundReturnsNilNoError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	doc, err := c.Get(context.Background(), "Customer", "C1")
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestClientGetSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token key:secret", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"name": "C1", "customer_name": "Acme"},
		})
	})

	doc, err := c.Get(context.Background(), "Customer", "C1")
	require.NoError(t, err)
	require.Equal(t, "C1", doc.Name())
}

func TestClientUpdateRetriesOnTimestampMismatch(t *testing.T) {
	attempts := 0

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && attempts == 0:
			attempts++
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"Document has been modified after you have opened it"}`))
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"name": "C1", "modified": "2025-01-02T00:00:00"},
			})
		case r.Method == http.MethodPut:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"name": "C1", "modified": "2025-01-02T00:00:01"},
			})
		}
	})

	doc, err := c.Update(context.Background(), "Customer", "C1", Document{"name": "C1", "modified": "2025-01-01T00:00:00"})
	require.NoError(t, err)
	require.Equal(t, "C1", doc.Name())
}

func TestClientUpdateSurfacesTimestampMismatchAfterMaxAttempts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"timestamp mismatch"}`))
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"name": "C1", "modified": "2025-01-02T00:00:00"},
			})
		}
	})

	_, err := c.Update(context.Background(), "Customer", "C1", Document{"name": "C1", "modified": "2025-01-01T00:00:00"})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	require.ErrorIs(t, apiErr, ErrTimestampMismatch)
}

func TestClientDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := c.Delete(context.Background(), "Customer", "C1")
	require.NoError(t, err)
}

func TestClientPingReturnsUsername(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "admin@example.com"})
	})

	name, err := c.Ping(context.Background())
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", name)
}

func TestClientRetriesOnServerError(t *testing.T) {
	calls := 0

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"name": "C1"}})
	})

	doc, err := c.Get(context.Background(), "Customer", "C1")
	require.NoError(t, err)
	require.Equal(t, "C1", doc.Name())
	require.Equal(t, 2, calls)
}
