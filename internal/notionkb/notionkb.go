// Package notionkb implements ports.KnowledgeBase against a real
// Notion database via github.com/jomei/notionapi. Spec §1 places the
// Notion HTTP wire format out of scope for the core; this adapter is
// the one piece of code in the repo that actually speaks it, kept
// behind the ports.KnowledgeBase seam so the pipeline never imports
// notionapi directly.
package notionkb

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/limmutable/collabiq/internal/ports"
)

// KB wraps a notionapi.Client as a ports.KnowledgeBase.
type KB struct {
	client *notionapi.Client
}

// New constructs a KB authenticated with token.
func New(token string) *KB {
	return &KB{client: notionapi.NewClient(notionapi.Token(token))}
}

// DiscoverSchema reads a database's property schema and its select
// options for the "type" field (the externally-discovered type tags
// spec §6 requires the core never hard-code).
func (k *KB) DiscoverSchema(ctx context.Context, dbID string, _ bool) (ports.Schema, error) {
	db, err := k.client.Database.Get(ctx, notionapi.DatabaseID(dbID))
	if err != nil {
		return ports.Schema{}, fmt.Errorf("notion: discover schema: %w", err)
	}

	schema := ports.Schema{}
	for name, cfg := range db.Properties {
		field := ports.Field{Name: name, Type: string(cfg.GetType())}

		if sel, ok := cfg.(*notionapi.SelectPropertyConfig); ok {
			if name == "type" || name == "Type" {
				for _, opt := range sel.Select.Options {
					schema.TypeTags = append(schema.TypeTags, opt.Name)
				}
			}
		}
		if rel, ok := cfg.(*notionapi.RelationPropertyConfig); ok {
			field.RelationTarget = rel.Relation.DatabaseID.String()
		}
		schema.Fields = append(schema.Fields, field)
	}
	return schema, nil
}

// ListRecords queries dbID, translating filter's recognized keys into
// Notion property filters: "email_id" is matched exactly (it is the
// idempotency key UpsertRecord looks existing rows up by), "name" is
// matched with rich-text "contains" (free-text company name search),
// and "source" is matched exactly.
func (k *KB) ListRecords(ctx context.Context, dbID string, filter map[string]any, limit int) ([]ports.Record, error) {
	req := &notionapi.DatabaseQueryRequest{PageSize: limit}
	if f := recordFilter(filter); f != nil {
		req.Filter = *f
	}

	resp, err := k.client.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, fmt.Errorf("notion: list records: %w", err)
	}

	out := make([]ports.Record, 0, len(resp.Results))
	for _, page := range resp.Results {
		out = append(out, ports.Record{ID: page.ID.String(), Properties: flatten(page.Properties)})
	}
	return out, nil
}

// recordFilter translates ListRecords' generic filter map into a
// Notion property filter: "email_id" (the idempotency key
// UpsertRecord looks existing rows up by) is matched exactly so two
// unrelated emails can never collide on the same page; "name" falls
// back to rich-text "contains" for free-text company search; "source"
// is matched exactly. Only the first recognized key, in that order, is
// applied. Returns nil when filter carries no recognized key.
func recordFilter(filter map[string]any) *notionapi.PropertyFilter {
	if id, ok := filter["email_id"].(string); ok && id != "" {
		return &notionapi.PropertyFilter{
			Property: "email_id",
			RichText: &notionapi.TextFilterCondition{Equals: id},
		}
	}
	if name, ok := filter["name"].(string); ok && name != "" {
		return &notionapi.PropertyFilter{
			Property: "name",
			RichText: &notionapi.TextFilterCondition{Contains: name},
		}
	}
	if src, ok := filter["source"].(string); ok && src != "" {
		return &notionapi.PropertyFilter{
			Property: "source",
			RichText: &notionapi.TextFilterCondition{Equals: src},
		}
	}
	return nil
}

// CreateRecord creates a new page under dbID with payload's fields.
func (k *KB) CreateRecord(ctx context.Context, dbID string, payload map[string]any) (ports.Record, error) {
	page, err := k.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{DatabaseID: notionapi.DatabaseID(dbID)},
		Properties: toProperties(payload),
	})
	if err != nil {
		return ports.Record{}, fmt.Errorf("notion: create record: %w", err)
	}
	return ports.Record{ID: page.ID.String(), Properties: payload}, nil
}

// UpsertRecord looks up an existing page keyed by email_id and
// updates it, or creates one if none exists; onDuplicate==skip leaves
// an existing match untouched.
func (k *KB) UpsertRecord(ctx context.Context, dbID, key string, payload map[string]any, onDuplicate ports.OnDuplicate) (ports.Record, error) {
	existing, err := k.ListRecords(ctx, dbID, map[string]any{"email_id": key}, 1)
	if err != nil {
		return ports.Record{}, err
	}

	if len(existing) == 0 {
		return k.CreateRecord(ctx, dbID, payload)
	}

	match := existing[0]
	if onDuplicate == ports.OnDuplicateSkip {
		return match, nil
	}

	page, err := k.client.Page.Update(ctx, notionapi.PageID(match.ID), &notionapi.PageUpdateRequest{
		Properties: toProperties(payload),
	})
	if err != nil {
		return ports.Record{}, fmt.Errorf("notion: upsert record: %w", err)
	}
	return ports.Record{ID: page.ID.String(), Properties: payload}, nil
}

// toProperties renders a generic payload map into Notion's rich-text
// property shape; callers needing select/relation/date properties for
// specific fields convert those values before calling in.
func toProperties(payload map[string]any) notionapi.Properties {
	props := notionapi.Properties{}
	for name, v := range payload {
		s := fmt.Sprintf("%v", v)
		props[name] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: s}}},
		}
	}
	return props
}

// flatten extracts a best-effort plain-text view of a page's
// properties for the pipeline's round-trip validation (spec §4.10).
func flatten(props notionapi.Properties) map[string]any {
	out := map[string]any{}
	for name, p := range props {
		var rt *notionapi.RichTextProperty
		switch v := p.(type) {
		case *notionapi.RichTextProperty:
			rt = v
		case notionapi.RichTextProperty:
			rt = &v
		}
		if rt != nil && len(rt.RichText) > 0 {
			out[name] = rt.RichText[0].Text.Content
		}
	}
	return out
}
