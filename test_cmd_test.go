package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossengine/docsync-go/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
}

func pingHandler(user string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"` + user + `"}`))
	}
}

func TestRunTest_BothEndpointsReachable(t *testing.T) {
	t.Parallel()

	cloudSrv := httptest.NewServer(pingHandler("cloud-user"))
	defer cloudSrv.Close()

	localSrv := httptest.NewServer(pingHandler("local-user"))
	defer localSrv.Close()

	cfg := config.DefaultConfig()
	cfg.Cloud.URL = cloudSrv.URL
	cfg.Local.URL = localSrv.URL

	cc := &CLIContext{Cfg: cfg, Logger: discardLogger()}

	cmd := newTestCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.WithValue(context.Background(), cliContextKey{}, cc))

	require.NoError(t, runTest(cmd, nil))
	assert.Contains(t, out.String(), "cloud: OK")
	assert.Contains(t, out.String(), "local: OK")
}

func TestRunTest_UnreachableEndpointReturnsConnectivityError(t *testing.T) {
	t.Parallel()

	cloudSrv := httptest.NewServer(pingHandler("cloud-user"))
	defer cloudSrv.Close()

	cfg := config.DefaultConfig()
	cfg.Cloud.URL = cloudSrv.URL
	cfg.Local.URL = "http://127.0.0.1:1" // nothing listens here

	cc := &CLIContext{Cfg: cfg, Logger: discardLogger()}

	cmd := newTestCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.WithValue(context.Background(), cliContextKey{}, cc))

	err := runTest(cmd, nil)
	require.Error(t, err)

	var ece *exitCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, 3, ece.code)
}
