package config

import (
	"errors"
	"fmt"
)

// Valid conflict resolution policy names, mirrored from internal/sync to
// avoid an import cycle (internal/sync does not, and should not, depend on
// internal/config).
var validConflictPolicies = map[string]bool{
	"latest_timestamp": true,
	"cloud_wins":       true,
	"local_wins":       true,
	"manual":           true,
}

// Validate checks all configuration values and returns every error found,
// rather than stopping at the first, so operators see a complete report.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateEndpoint("cloud", &cfg.Cloud)...)
	errs = append(errs, validateEndpoint("local", &cfg.Local)...)
	errs = append(errs, validateWebhook(&cfg.Webhook)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateWorker(&cfg.Worker)...)

	return errors.Join(errs...)
}

func validateEndpoint(name string, e *EndpointConfig) []error {
	var errs []error

	if e.URL == "" {
		errs = append(errs, fmt.Errorf("%s.url: required", name))
	}

	if e.Key == "" {
		errs = append(errs, fmt.Errorf("%s.key: required", name))
	}

	return errs
}

func validateWebhook(w *WebhookConfig) []error {
	var errs []error

	if w.Port <= 0 || w.Port > 65535 {
		errs = append(errs, fmt.Errorf("webhook.port: must be between 1 and 65535, got %d", w.Port))
	}

	if w.SignatureHeader == "" {
		errs = append(errs, fmt.Errorf("webhook.signature_header: required"))
	}

	if w.Secret == "" {
		// Not fatal: an empty secret disables verification, a valid but
		// dangerous development-only configuration (spec §6).
		return errs
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if !validConflictPolicies[s.ConflictResolution] {
		errs = append(errs, fmt.Errorf("sync.conflict_resolution: unknown policy %q", s.ConflictResolution))
	}

	if s.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("sync.batch_size: must be positive, got %d", s.BatchSize))
	}

	return errs
}

func validateRetry(r *RetryConfig) []error {
	var errs []error

	if r.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts: must be positive, got %d", r.MaxAttempts))
	}

	if r.BackoffSeconds < 0 {
		errs = append(errs, fmt.Errorf("retry.backoff_seconds: must not be negative, got %d", r.BackoffSeconds))
	}

	return errs
}

func validateWorker(w *WorkerConfig) []error {
	var errs []error

	if w.PollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("worker.poll_interval_ms: must be positive, got %d", w.PollIntervalMs))
	}

	if w.ClaimBatch <= 0 {
		errs = append(errs, fmt.Errorf("worker.claim_batch: must be positive, got %d", w.ClaimBatch))
	}

	return errs
}
