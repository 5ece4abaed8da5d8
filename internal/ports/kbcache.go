package ports

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/persistence"
	"github.com/limmutable/collabiq/internal/ratelimit"
)

// cacheEnvelope is the on-disk shape of a KB cache entry: payload plus
// age metadata, per the design note in spec §9 ("Cache with TTL").
type cacheEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
	TTL       time.Duration   `json:"ttl"`
}

func (e cacheEnvelope) stale() bool {
	return time.Since(e.FetchedAt) > e.TTL
}

// CachingKB wraps a KnowledgeBase with file-backed TTL caches (schema
// 24h, data 6h) and a token-bucket rate limit (default 3 req/s),
// satisfying spec §6's KB port contract and §5's shared-resource
// policy.
type CachingKB struct {
	inner     KnowledgeBase
	cacheRoot string
	limiter   *ratelimit.Limiter
	logger    *zap.Logger

	SchemaTTL time.Duration
	DataTTL   time.Duration
}

// NewCachingKB wraps inner with the default TTLs (schema 24h, data
// 6h) and the default KB rate limit (3 req/s).
func NewCachingKB(inner KnowledgeBase, cacheRoot string, logger *zap.Logger) *CachingKB {
	return &CachingKB{
		inner:     inner,
		cacheRoot: cacheRoot,
		limiter:   ratelimit.KnowledgeBaseDefault(),
		logger:    logger,
		SchemaTTL: 24 * time.Hour,
		DataTTL:   6 * time.Hour,
	}
}

func (c *CachingKB) path(kind, cacheKey string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return filepath.Join(c.cacheRoot, "notion_cache", kind+"_"+hex.EncodeToString(sum[:8])+".json")
}

// DiscoverSchema reads the cached schema when it is fresh and
// forceRefresh is false; otherwise it calls upstream, and if that call
// fails while a cached copy exists, the copy is served even if stale,
// whether or not forceRefresh was set (stale reads during outages are
// explicitly allowed per spec §9).
func (c *CachingKB) DiscoverSchema(ctx context.Context, dbID string, forceRefresh bool) (Schema, error) {
	path := c.path("schema", dbID)
	var env cacheEnvelope
	hasCache := persistence.ReadJSON(path, &env) == nil

	if hasCache && !forceRefresh && !env.stale() {
		var s Schema
		if err := json.Unmarshal(env.Payload, &s); err == nil {
			return s, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Schema{}, err
	}
	schema, err := c.inner.DiscoverSchema(ctx, dbID, forceRefresh)
	if err != nil {
		if hasCache {
			c.logger.Warn("kb schema refresh failed, serving stale cache", zap.Error(err))
			var s Schema
			if jerr := json.Unmarshal(env.Payload, &s); jerr == nil {
				return s, nil
			}
		}
		return Schema{}, err
	}

	c.writeCache(path, schema, c.SchemaTTL)
	return schema, nil
}

// ListRecords is rate-limited and cached with the data TTL; writes
// (CreateRecord/UpsertRecord) are rate-limited but never cached.
func (c *CachingKB) ListRecords(ctx context.Context, dbID string, filter map[string]any, limit int) ([]Record, error) {
	path := c.path("records", listCacheKey(dbID, filter, limit))
	var env cacheEnvelope
	hasCache := persistence.ReadJSON(path, &env) == nil

	if hasCache && !env.stale() {
		var records []Record
		if err := json.Unmarshal(env.Payload, &records); err == nil {
			return records, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	records, err := c.inner.ListRecords(ctx, dbID, filter, limit)
	if err != nil {
		if hasCache {
			c.logger.Warn("kb list records refresh failed, serving stale cache", zap.Error(err))
			var stale []Record
			if jerr := json.Unmarshal(env.Payload, &stale); jerr == nil {
				return stale, nil
			}
		}
		return nil, err
	}

	c.writeCache(path, records, c.DataTTL)
	return records, nil
}

// listCacheKey derives a deterministic cache key from a ListRecords
// call's arguments; encoding/json sorts map keys, so two calls with
// the same filter contents always hash the same regardless of
// iteration order.
func listCacheKey(dbID string, filter map[string]any, limit int) string {
	filterJSON, _ := json.Marshal(filter)
	return fmt.Sprintf("%s|%d|%s", dbID, limit, filterJSON)
}

func (c *CachingKB) CreateRecord(ctx context.Context, dbID string, payload map[string]any) (Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Record{}, err
	}
	return c.inner.CreateRecord(ctx, dbID, payload)
}

func (c *CachingKB) UpsertRecord(ctx context.Context, dbID, key string, payload map[string]any, onDuplicate OnDuplicate) (Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Record{}, err
	}
	return c.inner.UpsertRecord(ctx, dbID, key, payload, onDuplicate)
}

func (c *CachingKB) writeCache(path string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	env := cacheEnvelope{Payload: raw, FetchedAt: time.Now(), TTL: ttl}
	if err := persistence.WriteJSON(path, env); err != nil {
		c.logger.Warn("failed to persist kb cache entry", zap.Error(err))
	}
}
