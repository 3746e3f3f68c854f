package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantumlink/quantumlink/internal/cli/quantumlink"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := quantumlink.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
