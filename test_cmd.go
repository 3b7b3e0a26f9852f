package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check connectivity to both configured endpoints",
		RunE:  runTest,
	}
}

func runTest(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cloud, local := newRemoteClients(cc.Cfg, cc.Logger)

	ctx := context.Background()

	cloudUser, cloudErr := cloud.Ping(ctx)
	localUser, localErr := local.Ping(ctx)

	if cloudErr != nil || localErr != nil {
		if cloudErr != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "cloud: FAILED (%v)\n", cloudErr)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "cloud: OK (logged in as %s)\n", cloudUser)
		}

		if localErr != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "local: FAILED (%v)\n", localErr)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "local: OK (logged in as %s)\n", localUser)
		}

		return newConnectivityError(fmt.Errorf("one or more endpoints unreachable"))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cloud: OK (logged in as %s)\n", cloudUser)
	fmt.Fprintf(cmd.OutOrStdout(), "local: OK (logged in as %s)\n", localUser)

	return nil
}
