package orchestrator

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/limmutable/collabiq/internal/types"
	"github.com/limmutable/collabiq/internal/xerrors"
)

// FailoverStrategy tries candidates in order, returning the first
// success. Candidate order is the quality winner first (when quality
// routing is enabled) followed by the remaining configured priority.
type FailoverStrategy struct{}

func (FailoverStrategy) Name() string { return "failover" }

func (FailoverStrategy) Extract(ctx context.Context, o *Orchestrator, cleanedText, emailID string) (types.ExtractedEntities, error) {
	var lastErr error
	for _, name := range o.candidateOrder() {
		select {
		case <-ctx.Done():
			return types.ExtractedEntities{}, ctx.Err()
		default:
		}

		entities, err := o.attempt(ctx, name, cleanedText, emailID)
		if err == nil {
			return entities, nil
		}
		lastErr = err
		if xerrors.ClassOf(err) == types.ClassCritical {
			return types.ExtractedEntities{}, err
		}
	}
	if lastErr == nil {
		lastErr = xerrors.Permanent("no providers configured", nil)
	}
	return types.ExtractedEntities{}, lastErr
}

// fanOut runs attempt against every candidate concurrently, joined by
// an errgroup so a caller-cancelled context stops in-flight siblings.
func fanOut(ctx context.Context, o *Orchestrator, candidates []string, cleanedText, emailID string) []attemptOutcome {
	outcomes := make([]attemptOutcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, name := range candidates {
		i, name := i, name
		g.Go(func() error {
			entities, err := o.attempt(gctx, name, cleanedText, emailID)
			mu.Lock()
			outcomes[i] = attemptOutcome{provider: name, entities: entities, err: err}
			mu.Unlock()
			return nil // individual provider failures never abort the group
		})
	}
	_ = g.Wait()
	return outcomes
}

type attemptOutcome struct {
	provider string
	entities types.ExtractedEntities
	err      error
}

func healthyCandidates(o *Orchestrator) []string {
	var out []string
	for _, name := range o.Priority {
		if o.Health.Allow(name) {
			out = append(out, name)
		}
	}
	return out
}

// ConsensusStrategy invokes every healthy provider concurrently and
// takes a majority vote per field, breaking ties by higher per-field
// confidence.
type ConsensusStrategy struct{}

func (ConsensusStrategy) Name() string { return "consensus" }

func (ConsensusStrategy) Extract(ctx context.Context, o *Orchestrator, cleanedText, emailID string) (types.ExtractedEntities, error) {
	outcomes := fanOut(ctx, o, healthyCandidates(o), cleanedText, emailID)

	var ok []attemptOutcome
	for _, out := range outcomes {
		if out.err == nil {
			ok = append(ok, out)
		}
	}
	if len(ok) == 0 {
		return types.ExtractedEntities{}, xerrors.Transient("all providers failed", nil)
	}

	result := types.ExtractedEntities{Provider: "consensus", EmailID: emailID}
	fields := []struct {
		get func(types.ExtractedEntities) *string
		set func(*types.ExtractedEntities, *string, float64)
	}{
		{func(e types.ExtractedEntities) *string { return e.Person }, func(r *types.ExtractedEntities, v *string, c float64) { r.Person = v; r.Confidence.Person = c }},
		{func(e types.ExtractedEntities) *string { return e.Startup }, func(r *types.ExtractedEntities, v *string, c float64) { r.Startup = v; r.Confidence.Startup = c }},
		{func(e types.ExtractedEntities) *string { return e.Partner }, func(r *types.ExtractedEntities, v *string, c float64) { r.Partner = v; r.Confidence.Partner = c }},
		{func(e types.ExtractedEntities) *string { return e.Details }, func(r *types.ExtractedEntities, v *string, c float64) { r.Details = v; r.Confidence.Details = c }},
		{func(e types.ExtractedEntities) *string { return e.Date }, func(r *types.ExtractedEntities, v *string, c float64) { r.Date = v; r.Confidence.Date = c }},
	}
	confOf := []func(types.ExtractedEntities) float64{
		func(e types.ExtractedEntities) float64 { return e.Confidence.Person },
		func(e types.ExtractedEntities) float64 { return e.Confidence.Startup },
		func(e types.ExtractedEntities) float64 { return e.Confidence.Partner },
		func(e types.ExtractedEntities) float64 { return e.Confidence.Details },
		func(e types.ExtractedEntities) float64 { return e.Confidence.Date },
	}

	for i, f := range fields {
		winner, confidence := majorityField(ok, f.get, confOf[i])
		f.set(&result, winner, confidence)
	}
	result.ExtractedAt = ok[0].entities.ExtractedAt
	return result, nil
}

// majorityField returns the majority value for a field across
// outcomes (ties broken by higher mean confidence among contributors)
// and the mean confidence of the contributing votes.
func majorityField(outcomes []attemptOutcome, get func(types.ExtractedEntities) *string, conf func(types.ExtractedEntities) float64) (*string, float64) {
	type vote struct {
		value       string
		count       int
		confSum     float64
		hasNonEmpty bool
	}
	votes := map[string]*vote{}
	var order []string
	for _, out := range outcomes {
		v := get(out.entities)
		key := ""
		if v != nil {
			key = *v
		}
		if _, ok := votes[key]; !ok {
			votes[key] = &vote{value: key, hasNonEmpty: v != nil}
			order = append(order, key)
		}
		votes[key].count++
		votes[key].confSum += conf(out.entities)
	}

	sort.Slice(order, func(i, j int) bool {
		vi, vj := votes[order[i]], votes[order[j]]
		if vi.count != vj.count {
			return vi.count > vj.count
		}
		return vi.confSum/float64(vi.count) > vj.confSum/float64(vj.count)
	})

	best := votes[order[0]]
	if !best.hasNonEmpty {
		return nil, 0
	}
	s := best.value
	return &s, best.confSum / float64(best.count)
}

// BestMatchStrategy invokes every healthy provider concurrently and
// returns the result with the highest overall confidence.
type BestMatchStrategy struct{}

func (BestMatchStrategy) Name() string { return "best_match" }

func (BestMatchStrategy) Extract(ctx context.Context, o *Orchestrator, cleanedText, emailID string) (types.ExtractedEntities, error) {
	outcomes := fanOut(ctx, o, healthyCandidates(o), cleanedText, emailID)
	best, ok := bestByConfidence(outcomes)
	if !ok {
		return types.ExtractedEntities{}, xerrors.Transient("all providers failed", nil)
	}
	return best, nil
}

// AllProvidersStrategy invokes every healthy provider concurrently;
// orchestrator.attempt records quality metrics for every successful
// attempt, and the result returned is the one from the successful
// provider ranked first by the quality tracker (SelectByQuality). It
// falls back to the highest-confidence result when none of the
// successful providers has recorded quality.
type AllProvidersStrategy struct{}

func (AllProvidersStrategy) Name() string { return "all_providers" }

func (AllProvidersStrategy) Extract(ctx context.Context, o *Orchestrator, cleanedText, emailID string) (types.ExtractedEntities, error) {
	outcomes := fanOut(ctx, o, healthyCandidates(o), cleanedText, emailID)
	var succeeded []string
	for _, out := range outcomes {
		if out.err == nil {
			succeeded = append(succeeded, out.provider)
		}
	}
	if winner, ok := o.Quality.SelectByQuality(succeeded); ok {
		for _, out := range outcomes {
			if out.err == nil && out.provider == winner {
				return out.entities, nil
			}
		}
	}
	best, ok := bestByConfidence(outcomes)
	if !ok {
		return types.ExtractedEntities{}, xerrors.Transient("all providers failed", nil)
	}
	return best, nil
}

func bestByConfidence(outcomes []attemptOutcome) (types.ExtractedEntities, bool) {
	var best *types.ExtractedEntities
	for i := range outcomes {
		if outcomes[i].err != nil {
			continue
		}
		if best == nil || outcomes[i].entities.Confidence.Mean() > best.Confidence.Mean() {
			best = &outcomes[i].entities
		}
	}
	if best == nil {
		return types.ExtractedEntities{}, false
	}
	return *best, true
}
