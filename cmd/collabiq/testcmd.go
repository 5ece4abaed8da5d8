package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func cmdTest(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: collabiq test {validate, select-emails, e2e} [options]")
		return exitGeneric
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("limit", 5, "number of emails to select")
	sub := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return exitGeneric
	}

	a, code := buildApp(*configPath)
	if code != exitOK {
		return code
	}
	defer a.logger.Sync()
	ctx := context.Background()

	switch sub {
	case "validate":
		if a.cfg.Pipeline.Workers <= 0 || len(a.cfg.Providers.Priority) == 0 {
			fmt.Fprintln(os.Stderr, "configuration is incomplete")
			return exitValidation
		}
		if a.kb != nil {
			if _, err := a.kb.DiscoverSchema(ctx, a.cfg.KB.DatabaseID, true); err != nil {
				fmt.Fprintf(os.Stderr, "notion unreachable: %v\n", err)
				return exitExternal
			}
		}
		for name, adapter := range a.orch.Providers {
			if !a.health.Allow(name) {
				fmt.Printf("%s: breaker open, skipping reachability check\n", name)
				continue
			}
			if _, _, err := adapter.Extract(ctx, "validation probe: hello from CollabIQ", "validate-probe"); err != nil {
				fmt.Fprintf(os.Stderr, "%s unreachable: %v\n", name, err)
				return exitExternal
			}
		}
		fmt.Println("validate: ok")
		return exitOK

	case "select-emails":
		msgs, err := a.mail.ListNew(ctx, "", *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "select-emails failed: %v\n", err)
			return exitExternal
		}
		b, _ := json.MarshalIndent(msgs, "", "  ")
		fmt.Println(string(b))
		return exitOK

	case "e2e":
		if a.controller == nil {
			fmt.Fprintln(os.Stderr, "notion is not configured; set NOTION_API_KEY")
			return exitConfig
		}
		run, err := a.controller.RunOnce(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "e2e run failed: %v\n", err)
			return exitExternal
		}
		b, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(b))
		if run.Counters.Failed > 0 {
			return exitValidation
		}
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown test subcommand: %s\n", sub)
		return exitGeneric
	}
}
