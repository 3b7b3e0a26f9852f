package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossengine/docsync-go/internal/config"
	"github.com/fossengine/docsync-go/internal/sync"
)

func TestRunConflicts_NoConflictsPrintsMessage(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Sync.StateDBPath = filepath.Join(t.TempDir(), "state.db")

	cc := &CLIContext{Cfg: cfg, Logger: discardLogger()}

	cmd := newConflictsCmd()
	cmd.SetContext(contextWithCC(cc))

	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runConflicts(cmd, false))
	assert.Contains(t, out.String(), "no conflicts")
}

func TestRunConflicts_ListsUnresolvedOnly(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Sync.StateDBPath = filepath.Join(t.TempDir(), "state.db")

	cc := &CLIContext{Cfg: cfg, Logger: discardLogger()}

	store, err := openStore(cfg, discardLogger())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.RecordConflict(ctx, &sync.ConflictRecord{
		ID:            "c1",
		Doctype:       "Customer",
		Docname:       "doc-1",
		CloudSnapshot: "{}",
		LocalSnapshot: "{}",
	}))

	require.NoError(t, store.RecordConflict(ctx, &sync.ConflictRecord{
		ID:            "c2",
		Doctype:       "Customer",
		Docname:       "doc-2",
		CloudSnapshot: "{}",
		LocalSnapshot: "{}",
		Resolved:      true,
		Resolution:    "cloud_wins",
	}))

	cmd := newConflictsCmd()
	cmd.SetContext(contextWithCC(cc))

	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runConflicts(cmd, false))
	assert.Contains(t, out.String(), "doc-1")
	assert.NotContains(t, out.String(), "doc-2")
}
