package webhookapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	docsync "github.com/fossengine/docsync-go/internal/sync"
)

// fakeStore is a minimal in-memory Store used to test the HTTP surface
// without a real SQLite-backed state store.
type fakeStore struct {
	mu    sync.Mutex
	items []*docsync.WebhookQueueItem
}

func (f *fakeStore) Enqueue(_ context.Context, item *docsync.WebhookQueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, item)

	return nil
}

func (f *fakeStore) QueueCounts(_ context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.items), 0, nil
}

func newTestServer(t *testing.T, secret string) (*httptest.Server, *fakeStore) {
	t.Helper()

	store := &fakeStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	cfg.CloudSecret = secret
	cfg.LocalSecret = secret

	srv := New(cfg, store, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	return ts, store
}

func TestWebhookCloudEnqueuesOnValidSignature(t *testing.T) {
	ts, store := newTestServer(t, "topsecret")

	body := []byte(`{"doctype":"Customer","name":"C1"}`)
	sig := sign("topsecret", body)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook/cloud", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(DefaultConfig().SignatureHeader, sig)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, store.items, 1)
	require.Equal(t, docsync.SourceCloud, store.items[0].Source)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	ts, store := newTestServer(t, "topsecret")

	body := []byte(`{"doctype":"Customer","name":"C1"}`)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook/local", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(DefaultConfig().SignatureHeader, "0000")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, store.items)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t, "topsecret")

	body := []byte(`not json`)
	sig := sign("topsecret", body)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook/cloud", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(DefaultConfig().SignatureHeader, sig)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookAcceptsNestedDocFallback(t *testing.T) {
	ts, store := newTestServer(t, "topsecret")

	body := []byte(`{"doc":{"doctype":"Customer","name":"C2"},"event":"on_update"}`)
	sig := sign("topsecret", body)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook/cloud", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(DefaultConfig().SignatureHeader, sig)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, store.items, 1)
	require.Equal(t, "C2", store.items[0].Docname)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, "topsecret")

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "healthy", out["status"])
}

func TestStatusEndpointReportsQueueCounts(t *testing.T) {
	ts, store := newTestServer(t, "topsecret")
	store.items = append(store.items, &docsync.WebhookQueueItem{ID: "1"})

	resp, err := ts.Client().Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, float64(1), out["pending"])
}
