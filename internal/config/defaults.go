package config

// Default values for configuration options — "layer 0" of the four-layer
// override chain (defaults -> file -> env -> CLI).
const (
	defaultWebhookHost            = "0.0.0.0"
	defaultWebhookPort            = 8080
	defaultWebhookSignatureHeader = "X-Frappe-Webhook-Signature"
	defaultConflictResolution     = "latest_timestamp"
	defaultBatchSize              = 100
	defaultRetryMaxAttempts       = 3
	defaultRetryBackoffSeconds    = 2
	defaultWorkerPollMs           = 5000
	defaultWorkerClaimBatch       = 10
	defaultLogLevel               = "info"
	defaultLogFormat              = "auto"
)

// defaultExcludedFields mirrors remote.DefaultExcludedFields; duplicated as
// a plain string slice here so config defaults don't import internal/remote.
var defaultExcludedFields = []string{"modified", "modified_by", "creation", "owner", "idx", "docstatus"}

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding and as the fallback when no
// config file exists.
func DefaultConfig() *Config {
	return &Config{
		Webhook: WebhookConfig{
			Host:            defaultWebhookHost,
			Port:            defaultWebhookPort,
			SignatureHeader: defaultWebhookSignatureHeader,
		},
		Sync: SyncConfig{
			ExcludedFields:     append([]string(nil), defaultExcludedFields...),
			ConflictResolution: defaultConflictResolution,
			BatchSize:          defaultBatchSize,
		},
		Retry: RetryConfig{
			MaxAttempts:    defaultRetryMaxAttempts,
			BackoffSeconds: defaultRetryBackoffSeconds,
		},
		Worker: WorkerConfig{
			PollIntervalMs: defaultWorkerPollMs,
			ClaimBatch:     defaultWorkerClaimBatch,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
