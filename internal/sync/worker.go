package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerConfig bundles the queue worker's tunables (§6's worker.* and
// retry.* options).
type WorkerConfig struct {
	PollInterval    time.Duration
	ClaimBatchSize  int
	MaxConcurrent   int
	MaxRetries      int
	StaleClaimAge   time.Duration
	SweepInterval   time.Duration
}

// DefaultWorkerConfig returns the §6-documented defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:   2 * time.Second,
		ClaimBatchSize: 10,
		MaxConcurrent:  4,
		MaxRetries:     5,
		StaleClaimAge:  5 * time.Minute,
		SweepInterval:  1 * time.Minute,
	}
}

// Worker pulls claimed webhook queue items in FIFO batches and invokes the
// executor for each (§4.6). Multiple Workers may run against the same
// store; correctness does not depend on exactly one.
type Worker struct {
	store    Store
	executor *Executor
	cfg      WorkerConfig
	logger   *slog.Logger

	succeeded atomic.Int32
	failed    atomic.Int32
}

// NewWorker constructs a Worker. Fields in cfg that are zero or negative are
// filled from DefaultWorkerConfig.
func NewWorker(store Store, executor *Executor, cfg WorkerConfig, logger *slog.Logger) *Worker {
	defaults := DefaultWorkerConfig()

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}

	if cfg.ClaimBatchSize <= 0 {
		cfg.ClaimBatchSize = defaults.ClaimBatchSize
	}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	if cfg.StaleClaimAge <= 0 {
		cfg.StaleClaimAge = defaults.StaleClaimAge
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{store: store, executor: executor, cfg: cfg, logger: logger}
}

// Run polls the queue until ctx is canceled, claiming and dispatching
// batches across min(MaxConcurrent, ClaimBatchSize) goroutines per batch
// (§9 Open Question 1). It returns when ctx is done and all in-flight items
// have finished.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	items, err := w.store.ClaimBatch(ctx, w.cfg.ClaimBatchSize)
	if err != nil {
		w.logger.Error("claim batch failed", slog.String("error", err.Error()))
		return
	}

	if len(items) == 0 {
		return
	}

	concurrency := w.cfg.MaxConcurrent
	if concurrency > len(items) {
		concurrency = len(items)
	}

	var wg sync.WaitGroup

	sem := make(chan struct{}, concurrency)

	for _, item := range items {
		item := item

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			w.safeProcess(ctx, item)
		}()
	}

	wg.Wait()
}

// safeProcess recovers from a panic in processItem, converting it into a
// failed item rather than crashing the worker loop (per §7's treatment of
// transient transport errors — internal invariant violations are the only
// case meant to propagate a panic, and those are not raised here).
func (w *Worker) safeProcess(ctx context.Context, item *WebhookQueueItem) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic processing queue item", slog.String("id", item.ID), slog.Any("panic", r))
			w.failed.Add(1)

			if err := w.store.MarkFailed(ctx, item.ID, w.cfg.MaxRetries, fmt.Sprintf("panic: %v", r)); err != nil {
				w.logger.Error("failed to mark panicked item failed", slog.String("error", err.Error()))
			}
		}
	}()

	w.processItem(ctx, item)
}

func (w *Worker) processItem(ctx context.Context, item *WebhookQueueItem) {
	hint := hintFromSource(item.Source)

	outcome := w.executor.SyncOne(ctx, item.Doctype, item.Docname, hint)

	if outcome.Result == OutcomeFailed {
		w.failed.Add(1)

		msg := ""
		if outcome.Err != nil {
			msg = outcome.Err.Error()
		}

		if err := w.store.MarkFailed(ctx, item.ID, w.cfg.MaxRetries, msg); err != nil {
			w.logger.Error("failed to mark queue item failed", slog.String("id", item.ID), slog.String("error", err.Error()))
		}

		return
	}

	w.succeeded.Add(1)

	if err := w.store.MarkProcessed(ctx, item.ID); err != nil {
		w.logger.Error("failed to mark queue item processed", slog.String("id", item.ID), slog.String("error", err.Error()))
	}
}

func hintFromSource(source Source) Direction {
	if source == SourceCloud {
		return DirectionCloudToLocal
	}

	return DirectionLocalToCloud
}

// RunSweeper clears every is_syncing flag and runs SweepStaleClaims once
// immediately, then sweeps again on cfg.SweepInterval until ctx is canceled.
// The is_syncing flags are cleared unconditionally since no in-process lock
// survives a restart (§5); queue claims are reclaimed only once they are
// older than cfg.StaleClaimAge.
func (w *Worker) RunSweeper(ctx context.Context) error {
	if _, err := w.store.ClearAllSyncingFlags(ctx); err != nil {
		w.logger.Error("failed to clear syncing flags at startup", slog.String("error", err.Error()))
	}

	if _, err := w.store.SweepStaleClaims(ctx, w.cfg.StaleClaimAge); err != nil {
		w.logger.Error("failed to sweep stale claims at startup", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.store.SweepStaleClaims(ctx, w.cfg.StaleClaimAge); err != nil {
				w.logger.Error("failed to sweep stale claims", slog.String("error", err.Error()))
			}
		}
	}
}

// Stats returns the worker's lifetime success/failure counters.
func (w *Worker) Stats() (succeeded, failed int32) {
	return w.succeeded.Load(), w.failed.Load()
}
