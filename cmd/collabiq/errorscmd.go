package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/limmutable/collabiq/internal/ports"
	"github.com/limmutable/collabiq/internal/types"
)

func cmdErrors(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: collabiq errors {list, retry, clear} [options]")
		return exitGeneric
	}

	fs := flag.NewFlagSet("errors", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	emailID := fs.String("email", "", "email id")
	stage := fs.String("stage", "", "pipeline stage the entry failed at")
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
	case "list":
		b, _ := json.MarshalIndent(a.dlq.List(), "", "  ")
		fmt.Println(string(b))
		return exitOK

	case "retry":
		if *emailID == "" || *stage == "" {
			fmt.Fprintln(os.Stderr, "--email and --stage are required")
			return exitGeneric
		}
		if a.controller == nil {
			fmt.Fprintln(os.Stderr, "notion is not configured; set NOTION_API_KEY")
			return exitConfig
		}
		entry, ok := findEntry(a, *emailID, *stage)
		if !ok {
			fmt.Fprintf(os.Stderr, "no dlq entry for %s/%s\n", *emailID, *stage)
			return exitValidation
		}

		ctx := context.Background()

		// "write" and "validate" failures already carry the fully
		// computed KB payload (pipeline.go's writePayload output); replay
		// re-attempts only the write, reusing that payload verbatim
		// rather than re-extracting/re-linking/re-classifying from the
		// original message, which could non-deterministically write
		// different content than what actually failed.
		var replayOnce func(types.DLQEntry) error
		switch entry.Stage {
		case "write", "validate":
			replayOnce = func(e types.DLQEntry) error {
				return replayWriteEntry(ctx, a.kb, a.cfg.KB.DatabaseID, ports.OnDuplicate(a.cfg.Pipeline.OnDuplicate), e)
			}
		default:
			msgs, err := a.mail.ListNew(ctx, "", 10000)
			if err != nil {
				return exitExternal
			}
			var raw *types.RawMessage
			for i := range msgs {
				if msgs[i].ID == *emailID {
					raw = &msgs[i]
					break
				}
			}
			if raw == nil {
				fmt.Fprintf(os.Stderr, "original message %q is no longer available to replay\n", *emailID)
				return exitValidation
			}
			replayOnce = func(types.DLQEntry) error {
				state, perr := a.controller.ProcessOne(ctx, *raw)
				if perr != nil {
					return perr
				}
				if state != types.StateValidated {
					return fmt.Errorf("replay ended in state %s", state)
				}
				return nil
			}
		}

		replayErr := a.dlq.Replay(entry, replayOnce)
		if replayErr != nil {
			fmt.Fprintf(os.Stderr, "retry failed: %v\n", replayErr)
			return exitExternal
		}
		fmt.Printf("%s/%s: resolved\n", *emailID, *stage)
		return exitOK

	case "clear":
		if *emailID == "" || *stage == "" {
			fmt.Fprintln(os.Stderr, "--email and --stage are required")
			return exitGeneric
		}
		if err := a.dlq.Clear(*emailID, *stage); err != nil {
			fmt.Fprintf(os.Stderr, "clear failed: %v\n", err)
			return exitValidation
		}
		fmt.Printf("%s/%s: cleared\n", *emailID, *stage)
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown errors subcommand: %s\n", sub)
		return exitGeneric
	}
}

// replayWriteEntry reuses the payload a "write" or "validate" DLQ
// entry already carries and retries only the KB write, instead of
// regenerating that content via a fresh (non-deterministic) extract ->
// link -> classify run.
func replayWriteEntry(ctx context.Context, kb ports.KnowledgeBase, dbID string, onDup ports.OnDuplicate, e types.DLQEntry) error {
	var payload map[string]any
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode stored write payload: %w", err)
	}
	_, err := kb.UpsertRecord(ctx, dbID, e.EmailID, payload, onDup)
	return err
}

func findEntry(a *app, emailID, stage string) (types.DLQEntry, bool) {
	for _, e := range a.dlq.List() {
		if e.EmailID == emailID && e.Stage == stage {
			return e, true
		}
	}
	return types.DLQEntry{}, false
}
