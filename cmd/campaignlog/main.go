package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/campaignlog/internal/cmd/campaignlog"
	"github.com/louisbranch/campaignlog/internal/platform/config"
)

func main() {
	log.SetPrefix("[CAMPAIGNLOG] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := campaignlog.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		config.ExitCodef(campaignlog.ExitStatus(err), "campaignlog: %s", campaignlog.Describe(err))
	}
}
