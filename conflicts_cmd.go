package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newConflictsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List documents with unresolved conflicts",
		Long:  "List conflict records. By default only unresolved conflicts are shown; resolution is an external administrative action performed directly against the conflict store.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConflicts(cmd, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include already-resolved conflicts")

	return cmd
}

func runConflicts(cmd *cobra.Command, all bool) error {
	cc := mustCLIContext(cmd.Context())

	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return newConnectivityError(err)
	}
	defer store.Close()

	conflicts, err := store.ListConflicts(context.Background(), !all)
	if err != nil {
		return fmt.Errorf("listing conflicts: %w", err)
	}

	if cc.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())

		return enc.Encode(conflicts)
	}

	if len(conflicts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no conflicts")

		return nil
	}

	headers := []string{"ID", "DOCTYPE", "DOCNAME", "CLOUD MODIFIED", "LOCAL MODIFIED", "RESOLVED"}

	rows := make([][]string, 0, len(conflicts))

	for _, c := range conflicts {
		resolved := "no"
		if c.Resolved {
			resolved = "yes (" + c.Resolution + ")"
		}

		rows = append(rows, []string{
			c.ID, c.Doctype, c.Docname, c.CloudModified, c.LocalModified, resolved,
		})
	}

	printTable(cmd.OutOrStdout(), headers, rows)

	return nil
}
