// Package health implements the HealthTracker: per-provider
// success/latency/error counters and breaker state, persisted after
// every mutation. Grounded on the teacher's llm/router.go ModelHealth
// polling concept and llm/health_monitor.go, replacing weighted-random
// routing data with the flat map spec.md's ProviderHealth describes.
package health

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/breaker"
	"github.com/limmutable/collabiq/internal/persistence"
	"github.com/limmutable/collabiq/internal/types"
)

// Tracker owns one breaker per provider and persists the combined
// ProviderHealth map to a single JSON file.
type Tracker struct {
	mu       sync.Mutex
	path     string
	logger   *zap.Logger
	breakers map[string]*breaker.Breaker
}

// New loads (or initializes) the health tracker state at path.
func New(path string, logger *zap.Logger) *Tracker {
	t := &Tracker{path: path, logger: logger, breakers: map[string]*breaker.Breaker{}}
	return t
}

// Breaker returns (creating if necessary) the breaker for provider,
// using secretsCfg when the provider name is "secrets".
func (t *Tracker) Breaker(provider string) *breaker.Breaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.breakers[provider]; ok {
		return b
	}
	cfg := breaker.DefaultConfig()
	if provider == "secrets" {
		cfg = breaker.SecretsConfig()
	}
	b := breaker.New(provider, cfg, t.logger)
	t.breakers[provider] = b
	return b
}

// Allow reports whether a call to provider may proceed.
func (t *Tracker) Allow(provider string) bool {
	return t.Breaker(provider).Allow()
}

// RecordSuccess records a successful call to provider and persists.
func (t *Tracker) RecordSuccess(provider string, latency time.Duration) {
	t.Breaker(provider).RecordSuccess(latency)
	t.persist()
}

// RecordFailure records a failed call to provider and persists.
func (t *Tracker) RecordFailure(provider string, err error) {
	t.Breaker(provider).RecordFailure(err.Error())
	t.persist()
}

// Snapshot returns the current ProviderHealth map, keyed by provider
// name.
func (t *Tracker) Snapshot() map[string]types.ProviderHealth {
	t.mu.Lock()
	providers := make([]string, 0, len(t.breakers))
	snaps := make(map[string]*breaker.Breaker, len(t.breakers))
	for name, b := range t.breakers {
		providers = append(providers, name)
		snaps[name] = b
	}
	t.mu.Unlock()

	out := make(map[string]types.ProviderHealth, len(providers))
	for _, name := range providers {
		out[name] = snaps[name].Snapshot()
	}
	return out
}

func (t *Tracker) persist() {
	snap := t.Snapshot()
	if err := persistence.WriteJSON(t.path, snap); err != nil {
		t.logger.Warn("failed to persist health state", zap.Error(err))
	}
}

// Load creates one fresh breaker per persisted provider; a provider
// persisted as OPEN is re-opened by recording FailureThreshold
// failures, so its cooldown restarts at load time. Success/error
// counts, average latency and opened_at are not restored.
// Missing/corrupt files are tolerated and logged.
func (t *Tracker) Load() {
	var snap map[string]types.ProviderHealth
	persistence.LoadOrDefault(t.logger, t.path, &snap)
	for name, h := range snap {
		cfg := breaker.DefaultConfig()
		if name == "secrets" {
			cfg = breaker.SecretsConfig()
		}
		b := breaker.New(name, cfg, t.logger)
		if h.State == types.StateOpen {
			// Re-open via enough recorded failures; the cooldown
			// clock starts now, not at the persisted opened_at.
			for i := 0; i < cfg.FailureThreshold; i++ {
				b.RecordFailure(h.LastError)
			}
		}
		t.mu.Lock()
		t.breakers[name] = b
		t.mu.Unlock()
	}
}
