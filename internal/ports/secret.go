package ports

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/breaker"
)

// SecretResolver implements the secret port's three-tier fallback
// chain (spec §6): secret service -> in-process cache -> environment
// file. A Critical failure from the service does not block startup
// when an env fallback is available; a warning is logged instead.
type SecretResolver struct {
	service  SecretService
	breaker  *breaker.Breaker
	envFile  map[string]string
	cacheTTL time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// NewSecretResolver constructs a resolver. cacheTTL is clamped to
// [0, 3600] seconds per spec §6; an out-of-range value is logged once
// and clamped rather than rejected.
func NewSecretResolver(service SecretService, envFile map[string]string, cacheTTL time.Duration, logger *zap.Logger) *SecretResolver {
	clamped := cacheTTL
	if clamped < 0 {
		clamped = 0
	}
	if clamped > time.Hour {
		clamped = time.Hour
	}
	if clamped != cacheTTL {
		logger.Warn("secret cache ttl out of range, clamped to [0, 3600]s",
			zap.Duration("configured", cacheTTL), zap.Duration("clamped", clamped))
	}
	return &SecretResolver{
		service:  service,
		breaker:  breaker.New("secrets", breaker.SecretsConfig(), logger),
		envFile:  envFile,
		cacheTTL: clamped,
		logger:   logger,
		cache:    map[string]cachedSecret{},
	}
}

// Get resolves key through the fallback chain, returning ("", false)
// only when every tier misses.
func (r *SecretResolver) Get(ctx context.Context, key string) (string, bool) {
	if v, ok := r.fromCache(key); ok {
		return v, true
	}

	if r.service != nil && r.breaker.Allow() {
		start := time.Now()
		v, err := r.service.Get(ctx, key)
		if err == nil {
			r.breaker.RecordSuccess(time.Since(start))
			r.store(key, v)
			return v, true
		}
		r.breaker.RecordFailure(err.Error())
		r.logger.Warn("secret service lookup failed, falling back", zap.String("key", key), zap.Error(err))
	}

	if v, ok := r.envFile[key]; ok {
		return v, true
	}
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	return "", false
}

func (r *SecretResolver) fromCache(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[key]
	if !ok {
		return "", false
	}
	if r.cacheTTL > 0 && time.Since(c.fetchedAt) > r.cacheTTL {
		delete(r.cache, key)
		return "", false
	}
	return c.value, true
}

func (r *SecretResolver) store(key, value string) {
	if r.cacheTTL <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = cachedSecret{value: value, fetchedAt: time.Now()}
}
