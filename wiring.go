package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fossengine/docsync-go/internal/config"
	"github.com/fossengine/docsync-go/internal/remote"
	"github.com/fossengine/docsync-go/internal/sync"
)

// httpClientTimeout is the default per-request timeout for remote calls.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout, used by
// both remote clients.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRemoteClients builds the cloud and local remote.Client pair from the
// resolved config.
func newRemoteClients(cfg *config.Config, logger *slog.Logger) (cloud, local *remote.Client) {
	cloud = remote.NewClient(cfg.Cloud.URL, cfg.Cloud.Key, cfg.Cloud.Secret, defaultHTTPClient(), logger)
	local = remote.NewClient(cfg.Local.URL, cfg.Local.Key, cfg.Local.Secret, defaultHTTPClient(), logger)

	return cloud, local
}

// openStore opens the SQLite-backed state store at the configured path (or
// the platform default).
func openStore(cfg *config.Config, logger *slog.Logger) (*sync.SQLiteStore, error) {
	path := cfg.Sync.StateDBPath
	if path == "" {
		path = config.DefaultStateDBPath()
	}

	store, err := sync.NewStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening state store at %s: %w", path, err)
	}

	return store, nil
}

// newExecutor builds an Executor wired to the configured remotes and store.
func newExecutor(cfg *config.Config, store sync.Store, cloud, local *remote.Client, logger *slog.Logger) *sync.Executor {
	execCfg := sync.ExecutorConfig{
		ExcludedFields: cfg.Sync.ExcludedFields,
		MaxRetryCount:  cfg.Retry.MaxAttempts,
		ConflictPolicy: sync.Policy(cfg.Sync.ConflictResolution),
	}

	return sync.NewExecutor(cloud, local, store, execCfg, logger)
}

// newWorker builds a Worker wired to the configured store and executor.
func newWorker(cfg *config.Config, store sync.Store, exec *sync.Executor, logger *slog.Logger) *sync.Worker {
	workerCfg := sync.WorkerConfig{
		PollInterval:   time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond,
		ClaimBatchSize: cfg.Worker.ClaimBatch,
		MaxRetries:     cfg.Retry.MaxAttempts,
	}

	return sync.NewWorker(store, exec, workerCfg, logger)
}
