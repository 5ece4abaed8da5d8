package main

import (
	"encoding/json"
	"flag"
	"fmt"
)

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitGeneric
	}

	a, code := buildApp(*configPath)
	if code != exitOK {
		return code
	}
	defer a.logger.Sync()

	snapshot := struct {
		Health    any `json:"health"`
		Cost      any `json:"cost"`
		Quality   any `json:"quality"`
		DLQDepth  int `json:"dlq_depth"`
		KBWired   bool `json:"knowledge_base_wired"`
	}{
		Health:   a.health.Snapshot(),
		Cost:     a.cost.Snapshot(),
		Quality:  a.quality.Snapshot(),
		DLQDepth: len(a.dlq.List()),
		KBWired:  a.kb != nil,
	}
	b, _ := json.MarshalIndent(snapshot, "", "  ")
	fmt.Println(string(b))
	return exitOK
}
