package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func cmdLLM(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: collabiq llm {status, compare, set-strategy, set-quality-routing, test} [options]")
		return exitGeneric
	}

	fs := flag.NewFlagSet("llm", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	strategyName := fs.String("strategy", "", "strategy name: failover, consensus, best_match, all_providers")
	enabled := fs.Bool("enabled", true, "enable quality-based routing")
	text := fs.String("text", "", "sample text to run through the orchestrator")
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
	case "status":
		snapshot := struct {
			Health  any `json:"health"`
			Cost    any `json:"cost"`
			Quality any `json:"quality"`
		}{a.health.Snapshot(), a.cost.Snapshot(), a.quality.Snapshot()}
		b, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(b))
		return exitOK

	case "compare":
		b, _ := json.MarshalIndent(a.quality.Snapshot(), "", "  ")
		fmt.Println(string(b))
		return exitOK

	case "set-strategy":
		if *strategyName == "" {
			fmt.Fprintln(os.Stderr, "--strategy is required")
			return exitGeneric
		}
		a.orch.Strategy = strategyFor(*strategyName)
		fmt.Printf("strategy set to %s for this process; persist it in the config file to make it durable\n", *strategyName)
		return exitOK

	case "set-quality-routing":
		a.orch.QualityRouting = *enabled
		fmt.Printf("quality routing set to %v for this process; persist it in the config file to make it durable\n", *enabled)
		return exitOK

	case "test":
		if *text == "" {
			fmt.Fprintln(os.Stderr, "--text is required")
			return exitGeneric
		}
		entities, err := a.orch.Extract(context.Background(), *text, "llm-test")
		if err != nil {
			fmt.Fprintf(os.Stderr, "extraction failed: %v\n", err)
			return exitExternal
		}
		b, _ := json.MarshalIndent(entities, "", "  ")
		fmt.Println(string(b))
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown llm subcommand: %s\n", sub)
		return exitGeneric
	}
}
