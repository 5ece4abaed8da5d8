// Package mailsource implements ports.MailSource. Gmail OAuth
// acquisition is an out-of-scope external collaborator per spec §1;
// this package provides the concrete implementation the CLI actually
// runs against, a directory of pre-fetched RawMessage JSON files
// (one per file, named by message id). The directory is filled
// outside this program; the `email fetch` subcommand only lists the
// messages it holds.
package mailsource

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/limmutable/collabiq/internal/types"
)

// Directory is a MailSource backed by a directory of RawMessage JSON
// files.
type Directory struct {
	path string
}

// New constructs a Directory source rooted at path.
func New(path string) *Directory {
	return &Directory{path: path}
}

// ListNew reads up to limit RawMessages from the directory, oldest
// first by filename, optionally restricted by query as a case-
// insensitive substring match against Subject+Sender.
func (d *Directory) ListNew(_ context.Context, query string, limit int) ([]types.RawMessage, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]types.RawMessage, 0, limit)
	for _, name := range names {
		if len(out) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(d.path, name))
		if err != nil {
			continue
		}
		var msg types.RawMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if query != "" && !matches(msg, query) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func matches(msg types.RawMessage, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(msg.Subject), q) || strings.Contains(strings.ToLower(msg.Sender), q)
}
