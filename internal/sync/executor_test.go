package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fossengine/docsync-go/internal/remote"
)

// fakeEndpoint is a minimal in-memory document API server satisfying the
// contract of §6, used to drive the executor end to end without a real
// remote.
type fakeEndpoint struct {
	mu   sync.Mutex
	docs map[string]remote.Document // name -> document
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{docs: make(map[string]remote.Document)}
}

func (f *fakeEndpoint) server(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var name string
		_, _ = fmt.Sscanf(r.URL.Path, "/api/resource/Customer/%s", &name)

		switch r.Method {
		case http.MethodGet:
			doc, ok := f.docs[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			_ = json.NewEncoder(w).Encode(map[string]any{"data": doc})
		case http.MethodPost:
			var doc remote.Document
			_ = json.NewDecoder(r.Body).Decode(&doc)
			f.docs[doc.Name()] = doc
			_ = json.NewEncoder(w).Encode(map[string]any{"data": doc})
		case http.MethodPut:
			var doc remote.Document
			_ = json.NewDecoder(r.Body).Decode(&doc)
			doc["name"] = name
			f.docs[name] = doc
			_ = json.NewEncoder(w).Encode(map[string]any{"data": doc})
		}
	}))
}

func newExecutorFixture(t *testing.T) (*Executor, *fakeEndpoint, *fakeEndpoint) {
	t.Helper()

	cloudEP := newFakeEndpoint()
	localEP := newFakeEndpoint()

	cloudSrv := cloudEP.server(t)
	localSrv := localEP.server(t)
	t.Cleanup(cloudSrv.Close)
	t.Cleanup(localSrv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cloudClient := remote.NewClient(cloudSrv.URL, "k", "s", cloudSrv.Client(), logger)
	localClient := remote.NewClient(localSrv.URL, "k", "s", localSrv.Client(), logger)

	store := newTestStore(t)

	cfg := ExecutorConfig{MaxRetryCount: 3, ConflictPolicy: PolicyLatestTimestamp}
	exec := NewExecutor(cloudClient, localClient, store, cfg, logger)

	return exec, cloudEP, localEP
}

func TestSyncOneCreateThenPropagate(t *testing.T) {
	exec, cloudEP, localEP := newExecutorFixture(t)

	cloudEP.docs["C1"] = remote.Document{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00Z"}

	outcome := exec.SyncOne(context.Background(), "Customer", "C1", DirectionCloudToLocal)
	require.Equal(t, OutcomeSynced, outcome.Result)
	require.Equal(t, DirectionCloudToLocal, outcome.Direction)

	localDoc, ok := localEP.docs["C1"]
	require.True(t, ok)
	require.Equal(t, "Acme", localDoc["customer_name"])
}

func TestSyncOneNoOpReturnsSkipped(t *testing.T) {
	exec, cloudEP, localEP := newExecutorFixture(t)

	cloudEP.docs["C1"] = remote.Document{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00Z"}

	first := exec.SyncOne(context.Background(), "Customer", "C1", DirectionCloudToLocal)
	require.Equal(t, OutcomeSynced, first.Result)

	second := exec.SyncOne(context.Background(), "Customer", "C1", DirectionNone)
	require.Equal(t, OutcomeSkipped, second.Result)
	require.Equal(t, "no changes", second.Reason)

	_ = localEP
}

func TestSyncOneBothAbsentSkips(t *testing.T) {
	exec, _, _ := newExecutorFixture(t)

	outcome := exec.SyncOne(context.Background(), "Customer", "Ghost", DirectionNone)
	require.Equal(t, OutcomeSkipped, outcome.Result)
}

func TestSyncOneConflictUnderManualPolicyHalts(t *testing.T) {
	exec, cloudEP, localEP := newExecutorFixture(t)

	exec.conflict = NewConflictPolicy(PolicyManual, slog.Default())

	cloudEP.docs["C1"] = remote.Document{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00Z"}
	localEP.docs["C1"] = remote.Document{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00Z"}

	// Seed a sync record with hashes that don't match either side, forcing
	// a conflict decision on the next resolve.
	rec, err := exec.store.GetOrCreateSyncRecord(context.Background(), "Customer", "C1")
	require.NoError(t, err)
	rec.CloudHash = "stale-cloud"
	rec.LocalHash = "stale-local"
	require.NoError(t, exec.store.ReleaseSyncRecord(context.Background(), rec))

	outcome := exec.SyncOne(context.Background(), "Customer", "C1", DirectionNone)
	require.Equal(t, OutcomeConflict, outcome.Result)

	again := exec.SyncOne(context.Background(), "Customer", "C1", DirectionNone)
	require.Equal(t, OutcomeConflict, again.Result, "manual policy should continue halting the key")
}
