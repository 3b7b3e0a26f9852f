package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fossengine/docsync-go/internal/sync"
)

func newSyncCmd() *cobra.Command {
	var (
		doctype   string
		docname   string
		direction string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync documents between cloud and local endpoints",
		Long:  "Sync a single document, all documents of a doctype, or every configured doctype, resolving direction and applying writes per the conflict policy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, doctype, docname, direction, limit)
		},
	}

	cmd.Flags().StringVar(&doctype, "doctype", "", "limit sync to this doctype")
	cmd.Flags().StringVar(&docname, "docname", "", "sync only this document (requires --doctype)")
	cmd.Flags().StringVar(&direction, "direction", "auto", "force a direction: c->l, l->c, or auto")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit the number of documents synced with --doctype (0 = the first 100 listed by each endpoint)")

	return cmd
}

func parseDirectionFlag(direction string) (sync.Direction, error) {
	switch direction {
	case "auto", "":
		return sync.DirectionNone, nil
	case "c->l":
		return sync.DirectionCloudToLocal, nil
	case "l->c":
		return sync.DirectionLocalToCloud, nil
	default:
		return "", fmt.Errorf("invalid --direction %q: must be one of c->l, l->c, auto", direction)
	}
}

func runSync(cmd *cobra.Command, doctype, docname, direction string, limit int) error {
	cc := mustCLIContext(cmd.Context())

	if docname != "" && doctype == "" {
		return newConfigError(fmt.Errorf("--docname requires --doctype"))
	}

	hint, err := parseDirectionFlag(direction)
	if err != nil {
		return newConfigError(err)
	}

	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return newConnectivityError(err)
	}
	defer store.Close()

	cloud, local := newRemoteClients(cc.Cfg, cc.Logger)
	exec := newExecutor(cc.Cfg, store, cloud, local, cc.Logger)

	ctx := context.Background()

	switch {
	case docname != "":
		outcome := exec.SyncOne(ctx, doctype, docname, hint)
		return reportOutcome(cmd, cc, doctype, docname, outcome)

	case doctype != "":
		summary, err := exec.SyncDoctype(ctx, doctype, limit)
		if err != nil {
			return fmt.Errorf("sync doctype %s: %w", doctype, err)
		}

		return reportSummary(cmd, cc, summary)

	default:
		summary, err := exec.SyncAll(ctx, cc.Cfg.Sync.Doctypes)
		if err != nil {
			return fmt.Errorf("sync all: %w", err)
		}

		return reportSummary(cmd, cc, summary)
	}
}

func reportOutcome(cmd *cobra.Command, cc *CLIContext, doctype, docname string, outcome sync.Outcome) error {
	if cc.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())

		return enc.Encode(map[string]any{
			"doctype":   doctype,
			"docname":   docname,
			"result":    outcome.Result,
			"direction": outcome.Direction,
			"reason":    outcome.Reason,
		})
	}

	if outcome.Err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %s (%v)\n", doctype, docname, outcome.Result, outcome.Err)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %s (%s)\n", doctype, docname, outcome.Result, outcome.Direction)
	}

	if outcome.Result == sync.OutcomeFailed {
		return fmt.Errorf("sync failed: %s", outcome.Reason)
	}

	return nil
}

func reportSummary(cmd *cobra.Command, cc *CLIContext, summary sync.Summary) error {
	if cc.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())

		return enc.Encode(summary)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "synced=%d skipped=%d conflict=%d failed=%d total=%d\n",
		summary.Synced, summary.Skipped, summary.Conflict, summary.Failed, summary.Total())

	cc.Statusf("sync complete\n")

	return nil
}
