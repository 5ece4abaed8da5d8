// Package quality implements the QualityTracker: per-provider running
// confidence/completeness/validation statistics, trend detection, and
// quality-based ranking (spec §4.5). No component in the retrieved
// example pack implements Welford's recurrence or a sliding-window
// trend comparison (see DESIGN.md); this package is built from the
// textbook algorithm rather than adapted from teacher code, but keeps
// the atomic-mutate-then-persist shape used throughout this module's
// other trackers (internal/cost, internal/health) for consistency.
package quality

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/persistence"
	"github.com/limmutable/collabiq/internal/types"
)

const trendWindow = 50

// state is the mutable per-provider accumulator; it is not exported
// because ProviderQuality (the persisted/public view) is derived from
// it on demand.
type state struct {
	extractions       int64
	validationsPassed int64
	validationsFailed int64

	// Welford's online mean/variance over overall_confidence.
	mean   float64
	m2     float64

	completenessSum float64
	fieldsSum       float64
	perFieldSum     [5]float64

	// sliding window of the last `trendWindow` overall_confidences,
	// oldest first.
	window []float64
}

func (s *state) record(entities types.ExtractedEntities, passed bool) {
	s.extractions++
	if passed {
		s.validationsPassed++
	} else {
		s.validationsFailed++
	}

	overall := entities.Confidence.Mean()
	n := float64(s.extractions)
	delta := overall - s.mean
	s.mean += delta / n
	delta2 := overall - s.mean
	s.m2 += delta * delta2

	s.completenessSum += entities.Completeness()
	s.fieldsSum += float64(entities.FieldsExtracted())
	fields := entities.Confidence.Values()
	for i, v := range fields {
		s.perFieldSum[i] += v
	}

	s.window = append(s.window, overall)
	if len(s.window) > trendWindow {
		s.window = s.window[len(s.window)-trendWindow:]
	}
}

func (s *state) variance() float64 {
	if s.extractions < 2 {
		return 0
	}
	return s.m2 / float64(s.extractions-1)
}

func (s *state) trend() types.Trend {
	if len(s.window) < trendWindow {
		return types.TrendStable
	}
	prev := s.window[:25]
	last := s.window[25:]
	meanOf := func(xs []float64) float64 {
		sum := 0.0
		for _, x := range xs {
			sum += x
		}
		return sum / float64(len(xs))
	}
	diff := meanOf(last) - meanOf(prev)
	switch {
	case diff > 0.05:
		return types.TrendImproving
	case diff < -0.05:
		return types.TrendDegrading
	default:
		return types.TrendStable
	}
}

func (s *state) snapshot(name string) types.ProviderQuality {
	n := float64(s.extractions)
	var validationRate, avgCompleteness, avgFields float64
	var perField [5]float64
	if n > 0 {
		total := s.validationsPassed + s.validationsFailed
		if total > 0 {
			validationRate = float64(s.validationsPassed) / float64(total) * 100
		}
		avgCompleteness = s.completenessSum / n
		avgFields = s.fieldsSum / n
		for i := range perField {
			perField[i] = s.perFieldSum[i] / n
		}
	}
	return types.ProviderQuality{
		Name:                  name,
		Extractions:           s.extractions,
		ValidationsPassed:     s.validationsPassed,
		ValidationsFailed:     s.validationsFailed,
		ValidationRate:        validationRate,
		AvgConfidence:         s.mean,
		StddevConfidence:      math.Sqrt(s.variance()),
		AvgCompleteness:       avgCompleteness,
		AvgFieldsExtracted:    avgFields,
		PerFieldAvgConfidence: perField,
		Trend:                 s.trend(),
		LastUpdated:           time.Now(),
	}
}

// Tracker owns the ProviderQuality map and its persisted file.
type Tracker struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
	states map[string]*state
	costs  map[string]float64 // avg_cost_per_call, injected by the orchestrator for value scoring
}

// New creates a QualityTracker.
func New(path string, logger *zap.Logger) *Tracker {
	return &Tracker{path: path, logger: logger, states: map[string]*state{}, costs: map[string]float64{}}
}

// Load restores persisted quality state by replaying its summary
// fields into a fresh accumulator; exact Welford state (M2) is not
// round-tripped byte-for-byte, only the derived mean/variance, which
// is consistent with spec's atomic-persistence invariant (no partial
// writes) rather than exact replay of internal accumulator internals.
func (t *Tracker) Load() {
	var snap map[string]types.ProviderQuality
	persistence.LoadOrDefault(t.logger, t.path, &snap)
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, q := range snap {
		s := &state{
			extractions:       q.Extractions,
			validationsPassed: q.ValidationsPassed,
			validationsFailed: q.ValidationsFailed,
			mean:              q.AvgConfidence,
			m2:                q.StddevConfidence * q.StddevConfidence * float64(max64(q.Extractions-1, 0)),
			completenessSum:   q.AvgCompleteness * float64(q.Extractions),
			fieldsSum:         q.AvgFieldsExtracted * float64(q.Extractions),
		}
		for i := range s.perFieldSum {
			s.perFieldSum[i] = q.PerFieldAvgConfidence[i] * float64(q.Extractions)
		}
		t.states[name] = s
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// RecordExtraction implements record_extraction from spec §4.5.
func (t *Tracker) RecordExtraction(provider string, entities types.ExtractedEntities, validationPassed bool) types.ProviderQuality {
	t.mu.Lock()
	s, ok := t.states[provider]
	if !ok {
		s = &state{}
		t.states[provider] = s
	}
	s.record(entities, validationPassed)
	snap := s.snapshot(provider)
	t.mu.Unlock()

	t.persist()
	return snap
}

// SetAvgCostPerCall injects the current avg_cost_per_call for
// provider, used by Value() and SelectByQuality's tie-break.
func (t *Tracker) SetAvgCostPerCall(provider string, avgCost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.costs[provider] = avgCost
}

// Quality returns the composite quality score from spec §4.5:
// 0.4*avg_confidence + 0.3*(avg_completeness/100) + 0.3*(validation_rate/100).
func Quality(q types.ProviderQuality) float64 {
	return 0.4*q.AvgConfidence + 0.3*(q.AvgCompleteness/100) + 0.3*(q.ValidationRate/100)
}

// Value returns the value score from spec §4.5: quality per unit
// cost, with a 1.5x multiplier for free (zero-cost) providers.
func Value(q types.ProviderQuality, avgCostPerCall float64) float64 {
	v := Quality(q) / (1 + avgCostPerCall*1000)
	if avgCostPerCall == 0 {
		v *= 1.5
	}
	return v
}

// SelectByQuality returns the candidate with the highest quality
// score among those with at least one recorded extraction, breaking
// ties by lower average cost; returns ("", false) if none qualify.
func (t *Tracker) SelectByQuality(candidates []string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	type scored struct {
		name    string
		quality float64
		cost    float64
	}
	var pool []scored
	for _, name := range candidates {
		s, ok := t.states[name]
		if !ok || s.extractions == 0 {
			continue
		}
		q := s.snapshot(name)
		pool = append(pool, scored{name: name, quality: Quality(q), cost: t.costs[name]})
	}
	if len(pool) == 0 {
		return "", false
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].quality != pool[j].quality {
			return pool[i].quality > pool[j].quality
		}
		return pool[i].cost < pool[j].cost
	})
	return pool[0].name, true
}

// Snapshot returns the current ProviderQuality map.
func (t *Tracker) Snapshot() map[string]types.ProviderQuality {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]types.ProviderQuality, len(t.states))
	for name, s := range t.states {
		out[name] = s.snapshot(name)
	}
	return out
}

func (t *Tracker) persist() {
	if err := persistence.WriteJSON(t.path, t.Snapshot()); err != nil {
		t.logger.Warn("failed to persist quality state", zap.Error(err))
	}
}
