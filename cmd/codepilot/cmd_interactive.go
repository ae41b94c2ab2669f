package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/0x6d61/codepilot/internal/tools"
	"github.com/0x6d61/codepilot/internal/tui"
)

// runInteractive は TUI を起動する。
func runInteractive(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}
	defer o.Close()

	// グレースフルシャットダウン
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return tui.Run(ctx, o, tui.RunOptions{
		Logger:          logger.Named("tui"),
		TerminalHistory: cfg.TerminalHistory,
		Watch:           tools.WatcherOptions{Ignore: cfg.Tree.Ignore},
	})
}
