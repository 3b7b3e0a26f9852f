package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInit_WritesDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	flagConfigPath = path

	defer func() { flagConfigPath = "" }()

	cmd := newInitCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runInit(cmd, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[cloud]")
	assert.Contains(t, out.String(), "Wrote default config")
}

func TestRunInit_RefusesToOverwriteExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))

	flagConfigPath = path
	defer func() { flagConfigPath = "" }()

	cmd := newInitCmd()

	err := runInit(cmd, nil)
	require.Error(t, err)

	var ece *exitCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, 2, ece.code)
}
