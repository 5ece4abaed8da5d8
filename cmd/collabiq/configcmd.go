package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func cmdConfig(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: collabiq config {show, test} [options]")
		return exitGeneric
	}

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
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

	switch sub {
	case "show":
		b, _ := json.MarshalIndent(a.cfg, "", "  ")
		fmt.Println(string(b))
		return exitOK

	case "test":
		if a.cfg.Pipeline.Workers <= 0 {
			fmt.Fprintln(os.Stderr, "pipeline.workers must be positive")
			return exitValidation
		}
		if a.cfg.KB.DatabaseID == "" {
			fmt.Fprintln(os.Stderr, "kb.database_id is not set")
			return exitValidation
		}
		if len(a.cfg.Providers.Priority) == 0 {
			fmt.Fprintln(os.Stderr, "providers.priority is empty")
			return exitValidation
		}
		fmt.Println("config: ok")
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown config subcommand: %s\n", sub)
		return exitGeneric
	}
}
