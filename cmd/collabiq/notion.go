package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

func cmdNotion(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: collabiq notion {verify, schema, test-write, cleanup} [options]")
		return exitGeneric
	}

	fs := flag.NewFlagSet("notion", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	sub := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return exitGeneric
	}

	a, code := buildApp(*configPath)
	if code != exitOK {
		return code
	}
	defer a.logger.Sync()

	if a.kb == nil {
		fmt.Fprintln(os.Stderr, "notion is not configured; set NOTION_API_KEY")
		return exitConfig
	}
	ctx := context.Background()

	switch sub {
	case "verify":
		if _, err := a.kb.DiscoverSchema(ctx, a.cfg.KB.DatabaseID, true); err != nil {
			fmt.Fprintf(os.Stderr, "notion verify failed: %v\n", err)
			return exitExternal
		}
		fmt.Println("notion: ok")
		return exitOK

	case "schema":
		schema, err := a.kb.DiscoverSchema(ctx, a.cfg.KB.DatabaseID, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "schema discovery failed: %v\n", err)
			return exitExternal
		}
		b, _ := json.MarshalIndent(schema, "", "  ")
		fmt.Println(string(b))
		return exitOK

	case "test-write":
		rec, err := a.kb.CreateRecord(ctx, a.cfg.KB.DatabaseID, map[string]any{
			"email_id": fmt.Sprintf("collabiq-test-write-%d", time.Now().Unix()),
			"source":   "collabiq-test-write",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "test-write failed: %v\n", err)
			return exitExternal
		}
		fmt.Printf("created test record %s\n", rec.ID)
		return exitOK

	case "cleanup":
		// The knowledge-base port (spec §6) exposes no delete
		// operation; cleanup of test-written records is left to the
		// Notion collaborator's own tooling. This just reports the
		// records a prior test-write left behind.
		recs, err := a.kb.ListRecords(ctx, a.cfg.KB.DatabaseID, map[string]any{"source": "collabiq-test-write"}, 100)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cleanup scan failed: %v\n", err)
			return exitExternal
		}
		fmt.Printf("%d test records found; delete manually in Notion\n", len(recs))
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown notion subcommand: %s\n", sub)
		return exitGeneric
	}
}
