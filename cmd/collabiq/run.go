package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	daemon := fs.Bool("daemon", false, "run continuously")
	interval := fs.Duration("interval", 5*time.Minute, "daemon sleep interval")
	if err := fs.Parse(args); err != nil {
		return exitGeneric
	}

	a, code := buildApp(*configPath)
	if code != exitOK {
		return code
	}
	defer a.logger.Sync()

	if a.controller == nil {
		fmt.Fprintln(os.Stderr, "notion is not configured; set NOTION_API_KEY")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *daemon {
		a.logger.Info("starting daemon", zap.Duration("interval", *interval))
		a.controller.RunDaemon(ctx, *interval)
		if a.controller.Halted() {
			return exitExternal
		}
		return exitOK
	}

	run, err := a.controller.RunOnce(ctx)
	if err != nil {
		a.logger.Error("run failed", zap.Error(err))
		return exitExternal
	}
	fmt.Printf("run %s: received=%d processed=%d skipped=%d failed=%d status=%s\n",
		run.RunID, run.Counters.Received, run.Counters.Processed, run.Counters.Skipped, run.Counters.Failed, run.Status)
	if a.controller.Halted() {
		return exitExternal
	}
	return exitOK
}
