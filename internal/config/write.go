package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o600

// configDirPermissions is the standard permission mode for config
// directories.
const configDirPermissions = 0o700

// configTemplate is the default config file content written by `init`.
// Every setting is written out as an active value (the defaults, plus
// placeholder endpoint URLs and a sample doctype list) so operators can
// discover every option without reading docs.
const configTemplate = `# docsync-go configuration

[cloud]
url = "https://cloud.example.com"
key = ""
secret = ""

[local]
url = "https://local.example.com"
key = ""
secret = ""

[webhook]
host = "0.0.0.0"
port = 8080
secret = ""
signature_header = "X-Frappe-Webhook-Signature"

[sync]
doctypes = ["Customer"]
excluded_fields = ["modified", "modified_by", "creation", "owner", "idx", "docstatus"]
conflict_resolution = "latest_timestamp"
batch_size = 100

[retry]
max_attempts = 3
backoff_seconds = 2

[worker]
poll_interval_ms = 5000
claim_batch = 10

[logging]
log_level = "info"
log_format = "auto"
`

// WriteDefault writes configTemplate to path, creating parent directories
// as needed. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), configFilePermissions); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}

	return nil
}
