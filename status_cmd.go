package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fossengine/docsync-go/internal/sync"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync record tallies by status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return newConnectivityError(err)
	}
	defer store.Close()

	ctx := context.Background()

	records, err := store.ListSyncRecords(ctx, "")
	if err != nil {
		return fmt.Errorf("listing sync records: %w", err)
	}

	tally := map[sync.Status]int{}
	for _, rec := range records {
		tally[rec.Status]++
	}

	pendingQueue, processingQueue, err := store.QueueCounts(ctx)
	if err != nil {
		return fmt.Errorf("reading queue counts: %w", err)
	}

	if cc.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())

		return enc.Encode(map[string]any{
			"pending":          tally[sync.StatusPending],
			"synced":           tally[sync.StatusSynced],
			"error":            tally[sync.StatusError],
			"failed":           tally[sync.StatusFailed],
			"conflict":         tally[sync.StatusConflict],
			"total":            len(records),
			"queue_pending":    pendingQueue,
			"queue_processing": processingQueue,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sync records: pending=%d synced=%d error=%d failed=%d conflict=%d total=%d\n",
		tally[sync.StatusPending], tally[sync.StatusSynced], tally[sync.StatusError],
		tally[sync.StatusFailed], tally[sync.StatusConflict], len(records))
	fmt.Fprintf(cmd.OutOrStdout(), "webhook queue: pending=%d processing=%d\n", pendingQueue, processingQueue)

	return nil
}
