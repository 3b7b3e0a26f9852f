package sync

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerProcessesQueueItemAndMarksProcessed(t *testing.T) {
	exec, cloudEP, _ := newExecutorFixture(t)

	cloudEP.docs["C1"] = map[string]any{"name": "C1", "customer_name": "Acme", "modified": "2025-01-01T10:00:00Z"}

	require.NoError(t, exec.store.Enqueue(context.Background(), &WebhookQueueItem{
		ID: "q1", Source: SourceCloud, Doctype: "Customer", Docname: "C1", Action: ActionUpdate, RawPayload: "{}",
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(exec.store, exec, WorkerConfig{PollInterval: time.Hour}, logger)

	w.pollOnce(context.Background())

	succeeded, failed := w.Stats()
	require.Equal(t, int32(1), succeeded)
	require.Equal(t, int32(0), failed)

	pending, processing, err := exec.store.QueueCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, pending)
	require.Equal(t, 0, processing)
}

func TestWorkerCountsSkippedItemAsProcessed(t *testing.T) {
	exec, _, _ := newExecutorFixture(t)

	require.NoError(t, exec.store.Enqueue(context.Background(), &WebhookQueueItem{
		ID: "q1", Source: SourceCloud, Doctype: "Customer", Docname: "NoSuchDoc", Action: ActionUpdate, RawPayload: "{}",
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(exec.store, exec, WorkerConfig{PollInterval: time.Hour, MaxRetries: 5}, logger)

	w.pollOnce(context.Background())

	// Both sides absent is a skip, not a failure — this asserts the worker
	// treats skip outcomes as successful processing of the queue item.
	succeeded, failed := w.Stats()
	require.Equal(t, int32(1), succeeded)
	require.Equal(t, int32(0), failed)
}

func TestRunSweeperClearsStaleClaimsOnStartup(t *testing.T) {
	exec, _, _ := newExecutorFixture(t)

	require.NoError(t, exec.store.Enqueue(context.Background(), &WebhookQueueItem{
		ID: "q1", Source: SourceCloud, Doctype: "Customer", Docname: "C1", Action: ActionUpdate, RawPayload: "{}",
	}))
	_, err := exec.store.ClaimBatch(context.Background(), 10)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(exec.store, exec, WorkerConfig{StaleClaimAge: time.Nanosecond}, logger)

	// RunSweeper makes its startup pass straight away, then waits on the
	// sweep ticker until the context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_ = w.RunSweeper(ctx)

	items, err := exec.store.ClaimBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1, "expected startup sweep to reclaim the stale claim")
}
