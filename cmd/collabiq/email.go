package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/limmutable/collabiq/internal/normalize"
)

func cmdEmail(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: collabiq email {fetch, clean, list, process, verify} [options]")
		return exitGeneric
	}

	fs := flag.NewFlagSet("email", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("limit", 50, "max messages to fetch/list")
	id := fs.String("id", "", "message id")
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
	case "fetch", "list":
		msgs, err := a.mail.ListNew(ctx, a.cfg.Pipeline.GroupQuery, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			return exitExternal
		}
		for _, m := range msgs {
			fmt.Printf("%s\t%s\t%s\n", m.ID, m.Sender, m.Subject)
		}
		return exitOK

	case "clean":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "--id is required")
			return exitGeneric
		}
		msgs, err := a.mail.ListNew(ctx, "", 10000)
		if err != nil {
			return exitExternal
		}
		for _, m := range msgs {
			if m.ID == *id {
				cleaned := normalize.Clean(m)
				b, _ := json.MarshalIndent(cleaned, "", "  ")
				fmt.Println(string(b))
				return exitOK
			}
		}
		fmt.Fprintf(os.Stderr, "message %q not found\n", *id)
		return exitValidation

	case "process":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "--id is required")
			return exitGeneric
		}
		if a.controller == nil {
			fmt.Fprintln(os.Stderr, "notion is not configured; set NOTION_API_KEY")
			return exitConfig
		}
		msgs, err := a.mail.ListNew(ctx, "", 10000)
		if err != nil {
			return exitExternal
		}
		for _, m := range msgs {
			if m.ID == *id {
				state, perr := a.controller.ProcessOne(ctx, m)
				fmt.Printf("%s -> %s\n", m.ID, state)
				if perr != nil {
					fmt.Fprintln(os.Stderr, perr)
					return exitExternal
				}
				return exitOK
			}
		}
		fmt.Fprintf(os.Stderr, "message %q not found\n", *id)
		return exitValidation

	case "verify":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "--id is required")
			return exitGeneric
		}
		if a.dlq.IsProcessed(*id) {
			fmt.Printf("%s: processed\n", *id)
			return exitOK
		}
		fmt.Printf("%s: not processed\n", *id)
		return exitValidation

	default:
		fmt.Fprintf(os.Stderr, "unknown email subcommand: %s\n", sub)
		return exitGeneric
	}
}
