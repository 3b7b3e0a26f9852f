package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Cloud = EndpointConfig{URL: "https://cloud.example.com", Key: "k"}
	cfg.Local = EndpointConfig{URL: "https://local.example.com", Key: "k"}

	return cfg
}

func TestValidateRejectsMissingEndpointCredentials(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Cloud.URL = ""

	err := Validate(cfg)
	require.Error(t, err)
	require.ErrorContains(t, err, "cloud.url")
}

func TestValidateRejectsUnknownConflictPolicy(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Sync.ConflictResolution = "whatever"

	err := Validate(cfg)
	require.Error(t, err)
	require.ErrorContains(t, err, "conflict_resolution")
}

func TestValidateRejectsNonPositiveBatchSize(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Sync.BatchSize = 0

	require.Error(t, Validate(cfg))
}

func TestValidateAllowsEmptyWebhookSecret(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Webhook.Port = 8080
	cfg.Webhook.Secret = ""

	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Webhook.Port = 70000

	require.Error(t, Validate(cfg))
}
