package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fossengine/docsync-go/internal/config"
	"github.com/fossengine/docsync-go/internal/webhookapi"
)

func newWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook",
		Short: "Run the webhook intake server and background sync worker",
		Long:  "Start the HTTP webhook server that accepts cloud/local change notifications and the background worker that drains the durable queue. Runs until SIGINT/SIGTERM.",
		RunE:  runWebhook,
	}
}

func runWebhook(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	pidPath := config.DefaultPIDPath()

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return newConnectivityError(err)
	}
	defer cleanup()

	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return newConnectivityError(err)
	}
	defer store.Close()

	cloud, local := newRemoteClients(cc.Cfg, cc.Logger)
	exec := newExecutor(cc.Cfg, store, cloud, local, cc.Logger)
	worker := newWorker(cc.Cfg, store, exec, cc.Logger)

	webhookCfg := webhookapi.DefaultConfig()
	webhookCfg.Addr = fmt.Sprintf("%s:%d", cc.Cfg.Webhook.Host, cc.Cfg.Webhook.Port)
	webhookCfg.CloudSecret = cc.Cfg.Webhook.Secret
	webhookCfg.LocalSecret = cc.Cfg.Webhook.Secret
	webhookCfg.SignatureHeader = cc.Cfg.Webhook.SignatureHeader

	server := webhookapi.New(webhookCfg, store, cc.Logger)

	ctx := shutdownContext(context.Background(), cc.Logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Run(groupCtx)
	})

	group.Go(func() error {
		return worker.Run(groupCtx)
	})

	group.Go(func() error {
		return worker.RunSweeper(groupCtx)
	})

	cc.Logger.Info("webhook daemon started",
		slog.String("addr", webhookCfg.Addr),
		slog.Int("pid", pidFromPath(pidPath)),
	)

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("webhook daemon: %w", err)
	}

	succeeded, failed := worker.Stats()
	cc.Logger.Info("webhook daemon stopped",
		slog.Int64("succeeded", int64(succeeded)),
		slog.Int64("failed", int64(failed)),
	)

	return nil
}

// pidFromPath reads back the PID just written, for logging. Best-effort —
// logs 0 if the read fails, which never blocks startup.
func pidFromPath(path string) int {
	pid, err := readPIDFile(path)
	if err != nil {
		return 0
	}

	return pid
}
