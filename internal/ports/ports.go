// Package ports declares the narrow interfaces the core consumes for
// its external collaborators (spec §6): the mail source, the
// knowledge base, the per-vendor LLM ports (see internal/providers for
// those adapters), and the secret store. Per spec §1, the wire formats
// behind these ports — Gmail OAuth, the Notion HTTP API, secret
// storage — are out-of-scope external collaborators; only the seam is
// defined here.
package ports

import (
	"context"

	"github.com/limmutable/collabiq/internal/types"
)

// MailSource lists new messages addressed to the shared group inbox.
type MailSource interface {
	// ListNew returns up to limit RawMessages matching query, which
	// MUST filter by destination of the group address; the caller
	// supplies the exact filter string.
	ListNew(ctx context.Context, query string, limit int) ([]types.RawMessage, error)
}

// Field describes one knowledge-base schema field.
type Field struct {
	Name           string
	Type           string
	RelationTarget string // non-empty when Type is a relation
}

// Schema is the discovered knowledge-base schema for one database.
type Schema struct {
	Fields   []Field
	TypeTags []string // the externally-discovered classification type tags
}

// Record is one knowledge-base row.
type Record struct {
	ID         string
	Properties map[string]any
}

// OnDuplicate controls upsert behavior when a record already exists.
type OnDuplicate string

const (
	OnDuplicateSkip   OnDuplicate = "skip"
	OnDuplicateUpdate OnDuplicate = "update"
)

// KnowledgeBase is the four-operation port spec §6 defines.
type KnowledgeBase interface {
	DiscoverSchema(ctx context.Context, dbID string, forceRefresh bool) (Schema, error)
	ListRecords(ctx context.Context, dbID string, filter map[string]any, limit int) ([]Record, error)
	CreateRecord(ctx context.Context, dbID string, payload map[string]any) (Record, error)
	UpsertRecord(ctx context.Context, dbID, key string, payload map[string]any, onDuplicate OnDuplicate) (Record, error)
}

// SecretService is the first tier of the secret port's fallback
// chain: a remote secret service.
type SecretService interface {
	Get(ctx context.Context, key string) (string, error)
}
