// Package main is the entry point for the mailpipe command.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/mailpipe/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		slog.Error("mailpipe failed", "error", err)
		stop()
		os.Exit(1)
	}
}
