// Command portal is the single-user student portal: one persisted session, restored on
// every invocation, the way a browser tab keeps its local storage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"edustatus/internal/config"
	"edustatus/internal/logger"
	"edustatus/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPortal(cfg, store.OpenMedium)
	err := rootCmd(p).ExecuteContext(ctx)
	if cerr := p.close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
