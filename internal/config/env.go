package config

import (
	"os"
	"strconv"
)

// Environment variable names for overrides.
const (
	EnvConfig         = "DOCSYNC_CONFIG"
	EnvCloudURL       = "DOCSYNC_CLOUD_URL"
	EnvCloudKey       = "DOCSYNC_CLOUD_KEY"
	EnvCloudSecret    = "DOCSYNC_CLOUD_SECRET"
	EnvLocalURL       = "DOCSYNC_LOCAL_URL"
	EnvLocalKey       = "DOCSYNC_LOCAL_KEY"
	EnvLocalSecret    = "DOCSYNC_LOCAL_SECRET"
	EnvWebhookSecret  = "DOCSYNC_WEBHOOK_SECRET"
	EnvWebhookPort    = "DOCSYNC_WEBHOOK_PORT"
	EnvStateDBPath    = "DOCSYNC_STATE_DB"
	EnvEnvironment    = "DOCSYNC_ENV"
)

// EnvOverrides holds values derived from environment variables. Resolved by
// ReadEnvOverrides; callers apply the relevant fields over file defaults.
type EnvOverrides struct {
	ConfigPath     string
	CloudURL       string
	CloudKey       string
	CloudSecret    string
	LocalURL       string
	LocalKey       string
	LocalSecret    string
	WebhookSecret  string
	WebhookPort    int // 0 means unset
	StateDBPath    string
	Environment    string // "PROD" disables the interactive tint log handler
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant
// fields.
func ReadEnvOverrides() EnvOverrides {
	overrides := EnvOverrides{
		ConfigPath:    os.Getenv(EnvConfig),
		CloudURL:      os.Getenv(EnvCloudURL),
		CloudKey:      os.Getenv(EnvCloudKey),
		CloudSecret:   os.Getenv(EnvCloudSecret),
		LocalURL:      os.Getenv(EnvLocalURL),
		LocalKey:      os.Getenv(EnvLocalKey),
		LocalSecret:   os.Getenv(EnvLocalSecret),
		WebhookSecret: os.Getenv(EnvWebhookSecret),
		StateDBPath:   os.Getenv(EnvStateDBPath),
		Environment:   os.Getenv(EnvEnvironment),
	}

	if raw := os.Getenv(EnvWebhookPort); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			overrides.WebhookPort = port
		}
	}

	return overrides
}

// Apply layers non-empty environment overrides onto cfg. Called after the
// config file is loaded and before CLI flags are applied.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.CloudURL != "" {
		cfg.Cloud.URL = e.CloudURL
	}

	if e.CloudKey != "" {
		cfg.Cloud.Key = e.CloudKey
	}

	if e.CloudSecret != "" {
		cfg.Cloud.Secret = e.CloudSecret
	}

	if e.LocalURL != "" {
		cfg.Local.URL = e.LocalURL
	}

	if e.LocalKey != "" {
		cfg.Local.Key = e.LocalKey
	}

	if e.LocalSecret != "" {
		cfg.Local.Secret = e.LocalSecret
	}

	if e.WebhookSecret != "" {
		cfg.Webhook.Secret = e.WebhookSecret
	}

	if e.WebhookPort != 0 {
		cfg.Webhook.Port = e.WebhookPort
	}

	if e.StateDBPath != "" {
		cfg.Sync.StateDBPath = e.StateDBPath
	}
}
