package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cloud = EndpointConfig{URL: "https://cloud.example.com", Key: "k", Secret: "s"}
	cfg.Local = EndpointConfig{URL: "https://local.example.com", Key: "k", Secret: "s"}

	require.NoError(t, Validate(cfg))
}

func TestLoadParsesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[cloud]
url = "https://cloud.example.com"
key = "ck"
secret = "cs"

[local]
url = "https://local.example.com"
key = "lk"
secret = "ls"

[sync]
doctypes = ["Customer"]
conflict_resolution = "cloud_wins"
batch_size = 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)
	require.Equal(t, "ck", cfg.Cloud.Key)
	require.Equal(t, "cloud_wins", cfg.Sync.ConflictResolution)
	require.Equal(t, 50, cfg.Sync.BatchSize)
	// Unset fields keep their defaults.
	require.Equal(t, defaultRetryMaxAttempts, cfg.Retry.MaxAttempts)
}

func TestLoadOrDefaultFallsBackWhenFileMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), testLogger())
	require.NoError(t, err)
	require.Equal(t, defaultConflictResolution, cfg.Sync.ConflictResolution)
}

func TestResolveAppliesEnvOverTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[cloud]
url = "https://cloud.example.com"
key = "filekey"
secret = "filesecret"

[local]
url = "https://local.example.com"
key = "lk"
secret = "ls"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	env := EnvOverrides{CloudKey: "envkey"}
	cli := CLIOverrides{ConfigPath: path}

	cfg, err := Resolve(env, cli, testLogger())
	require.NoError(t, err)
	require.Equal(t, "envkey", cfg.Cloud.Key)
	require.Equal(t, "filesecret", cfg.Cloud.Secret, "unset env fields must not clobber file values")
}
