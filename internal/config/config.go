// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for docsync-go.
package config

// Config is the top-level configuration structure: endpoint credentials for
// both remotes, webhook intake settings, the doctypes kept in sync, and the
// executor/worker tuning knobs of spec §6.
type Config struct {
	Cloud   EndpointConfig `toml:"cloud"`
	Local   EndpointConfig `toml:"local"`
	Webhook WebhookConfig  `toml:"webhook"`
	Sync    SyncConfig     `toml:"sync"`
	Retry   RetryConfig    `toml:"retry"`
	Worker  WorkerConfig   `toml:"worker"`
	Logging LoggingConfig  `toml:"logging"`
}

// EndpointConfig holds the base URL and API token pair for one remote
// document endpoint.
type EndpointConfig struct {
	URL    string `toml:"url"`
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
}

// WebhookConfig controls the intake HTTP server's bind address, signing
// secret, and the signature header name (§4.5).
type WebhookConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Secret          string `toml:"secret"`
	SignatureHeader string `toml:"signature_header"`
}

// SyncConfig controls which doctypes participate in sync, which fields are
// excluded from hashing and writes, and the conflict policy.
type SyncConfig struct {
	Doctypes           []string `toml:"doctypes"`
	ExcludedFields     []string `toml:"excluded_fields"`
	ConflictResolution string   `toml:"conflict_resolution"`
	BatchSize          int      `toml:"batch_size"`
	StateDBPath        string   `toml:"state_db_path"`
}

// RetryConfig controls the executor-level retry ceiling and the backoff
// base exposed to operator-configured external retries.
type RetryConfig struct {
	MaxAttempts    int `toml:"max_attempts"`
	BackoffSeconds int `toml:"backoff_seconds"`
}

// WorkerConfig controls the queue worker's poll cadence and claim batch
// size.
type WorkerConfig struct {
	PollIntervalMs int `toml:"poll_interval_ms"`
	ClaimBatch     int `toml:"claim_batch"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}
