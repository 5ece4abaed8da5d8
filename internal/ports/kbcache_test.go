package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingKB struct {
	schemaCalls int
	schema      Schema
	err         error

	listCalls int
	records   []Record
	listErr   error
}

func (k *countingKB) DiscoverSchema(ctx context.Context, dbID string, forceRefresh bool) (Schema, error) {
	k.schemaCalls++
	if k.err != nil {
		return Schema{}, k.err
	}
	return k.schema, nil
}

func (k *countingKB) ListRecords(ctx context.Context, dbID string, filter map[string]any, limit int) ([]Record, error) {
	k.listCalls++
	if k.listErr != nil {
		return nil, k.listErr
	}
	return k.records, nil
}

func (k *countingKB) CreateRecord(ctx context.Context, dbID string, payload map[string]any) (Record, error) {
	return Record{}, nil
}

func (k *countingKB) UpsertRecord(ctx context.Context, dbID, key string, payload map[string]any, onDuplicate OnDuplicate) (Record, error) {
	return Record{}, nil
}

var _ KnowledgeBase = (*countingKB)(nil)

func TestCachingKB_CachesSchemaWithinTTL(t *testing.T) {
	inner := &countingKB{schema: Schema{TypeTags: []string{"Portfolio"}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())

	s1, err := c.DiscoverSchema(context.Background(), "db", false)
	assert.NoError(t, err)
	s2, err := c.DiscoverSchema(context.Background(), "db", false)
	assert.NoError(t, err)

	assert.Equal(t, 1, inner.schemaCalls)
	assert.Equal(t, s1, s2)
}

func TestCachingKB_ForceRefreshBypassesCache(t *testing.T) {
	inner := &countingKB{schema: Schema{TypeTags: []string{"Portfolio"}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())

	_, err := c.DiscoverSchema(context.Background(), "db", false)
	assert.NoError(t, err)
	_, err = c.DiscoverSchema(context.Background(), "db", true)
	assert.NoError(t, err)

	assert.Equal(t, 2, inner.schemaCalls)
}

func TestCachingKB_ExpiredCacheTriggersRefresh(t *testing.T) {
	inner := &countingKB{schema: Schema{TypeTags: []string{"Portfolio"}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())
	c.SchemaTTL = 1 * time.Millisecond

	_, err := c.DiscoverSchema(context.Background(), "db", false)
	assert.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.DiscoverSchema(context.Background(), "db", false)
	assert.NoError(t, err)

	assert.Equal(t, 2, inner.schemaCalls)
}

// TestCachingKB_ServesStaleCacheOnRefreshFailure asserts spec §9's
// explicit allowance: an upstream outage falls back to the last known
// schema rather than failing the caller outright.
func TestCachingKB_ServesStaleCacheOnRefreshFailure(t *testing.T) {
	inner := &countingKB{schema: Schema{TypeTags: []string{"Portfolio"}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())
	c.SchemaTTL = 1 * time.Millisecond

	_, err := c.DiscoverSchema(context.Background(), "db", false)
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	inner.err = errors.New("notion unreachable")
	schema, err := c.DiscoverSchema(context.Background(), "db", false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Portfolio"}, schema.TypeTags)
}

func TestCachingKB_NoStaleCacheReturnsError(t *testing.T) {
	inner := &countingKB{err: errors.New("notion unreachable")}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())

	_, err := c.DiscoverSchema(context.Background(), "db", false)
	assert.Error(t, err)
}

func TestCachingKB_ListRecordsCachesWithinDataTTL(t *testing.T) {
	inner := &countingKB{records: []Record{{ID: "r1", Properties: map[string]any{"name": "Acme"}}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())

	r1, err := c.ListRecords(context.Background(), "db", nil, 50)
	assert.NoError(t, err)
	r2, err := c.ListRecords(context.Background(), "db", nil, 50)
	assert.NoError(t, err)

	assert.Equal(t, 1, inner.listCalls)
	assert.Equal(t, r1, r2)
}

func TestCachingKB_ListRecordsDifferentFiltersCacheSeparately(t *testing.T) {
	inner := &countingKB{records: []Record{{ID: "r1"}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())

	_, err := c.ListRecords(context.Background(), "db", map[string]any{"name": "Acme"}, 50)
	assert.NoError(t, err)
	_, err = c.ListRecords(context.Background(), "db", map[string]any{"name": "Globex"}, 50)
	assert.NoError(t, err)

	assert.Equal(t, 2, inner.listCalls)
}

func TestCachingKB_ListRecordsExpiredCacheTriggersRefresh(t *testing.T) {
	inner := &countingKB{records: []Record{{ID: "r1"}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())
	c.DataTTL = 1 * time.Millisecond

	_, err := c.ListRecords(context.Background(), "db", nil, 50)
	assert.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.ListRecords(context.Background(), "db", nil, 50)
	assert.NoError(t, err)

	assert.Equal(t, 2, inner.listCalls)
}

// TestCachingKB_ListRecordsServesStaleCacheOnRefreshFailure mirrors
// DiscoverSchema's outage fallback: a refresh failure after the data
// cache has expired still serves the last known record list.
func TestCachingKB_ListRecordsServesStaleCacheOnRefreshFailure(t *testing.T) {
	inner := &countingKB{records: []Record{{ID: "r1", Properties: map[string]any{"name": "Acme"}}}}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())
	c.DataTTL = 1 * time.Millisecond

	_, err := c.ListRecords(context.Background(), "db", nil, 50)
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	inner.listErr = errors.New("notion unreachable")
	records, err := c.ListRecords(context.Background(), "db", nil, 50)
	assert.NoError(t, err)
	assert.Equal(t, "r1", records[0].ID)
}

func TestCachingKB_ListRecordsNoStaleCacheReturnsError(t *testing.T) {
	inner := &countingKB{listErr: errors.New("notion unreachable")}
	c := NewCachingKB(inner, t.TempDir(), zap.NewNop())

	_, err := c.ListRecords(context.Background(), "db", nil, 50)
	assert.Error(t, err)
}
