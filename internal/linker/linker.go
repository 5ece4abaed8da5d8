// Package linker implements the FuzzyLinker: resolves extracted
// company and person strings to knowledge-base identifiers, and
// auto-creates missing companies. No file in the retrieved example
// pack implements string-similarity matching (see DESIGN.md); per
// spec §9's own Open Question ("the source uses a library default"),
// this package uses the ecosystem's Jaro-Winkler implementation
// (github.com/xrash/smetrics) rather than hand-rolling the distance
// function.
package linker

import (
	"sort"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"

	"github.com/limmutable/collabiq/internal/types"
)

const (
	matchThreshold     = 0.85
	ambiguousThreshold = 0.70
	personThreshold    = 0.70
)

// Candidate is a knowledge-base name available for matching, paired
// with its identifier.
type Candidate struct {
	ID   string
	Name string
}

// Linker resolves query strings against a candidate pool.
type Linker struct{}

// New constructs a FuzzyLinker.
func New() *Linker { return &Linker{} }

// normalize strips whitespace, case-folds, removes punctuation, and
// normalizes common legal suffixes. Punctuation and whitespace are
// recognized by Unicode category in every script; letters of scripts
// without case (e.g. Korean) pass through unchanged as UTF-8.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsPunct(r):
			// drop
		default:
			b.WriteRune(r)
		}
	}
	normalized := strings.Join(strings.Fields(b.String()), " ")
	return stripLegalSuffix(normalized)
}

var legalSuffixes = []string{
	" inc", " incorporated", " corp", " corporation", " co", " company",
	" ltd", " limited", " llc", " llp", " plc", " gmbh", " sa", " ag",
}

func stripLegalSuffix(s string) string {
	for _, suf := range legalSuffixes {
		if strings.HasSuffix(s, suf) {
			return strings.TrimSpace(strings.TrimSuffix(s, suf))
		}
	}
	return s
}

// MatchCompany scores query against candidates using Jaro-Winkler
// similarity and returns the decision per spec §4.8's thresholds.
func (l *Linker) MatchCompany(query string, candidates []Candidate) types.MatchResult {
	nq := normalize(query)

	type scored struct {
		cand Candidate
		sim  float64
		norm string
	}
	var pool []scored
	for _, c := range candidates {
		nc := normalize(c.Name)
		sim := smetrics.JaroWinkler(nq, nc, 0.7, 4)
		pool = append(pool, scored{cand: c, sim: sim, norm: nc})
	}
	if len(pool) == 0 {
		return types.MatchResult{Query: query, Similarity: 0, Decision: types.DecisionAutoCreate}
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].sim != pool[j].sim {
			return pool[i].sim > pool[j].sim
		}
		// exact normalized match wins
		iExact, jExact := pool[i].norm == nq, pool[j].norm == nq
		if iExact != jExact {
			return iExact
		}
		// longer common prefix
		iPre, jPre := commonPrefixLen(nq, pool[i].norm), commonPrefixLen(nq, pool[j].norm)
		if iPre != jPre {
			return iPre > jPre
		}
		// lexicographic order, deterministic
		return pool[i].norm < pool[j].norm
	})

	best := pool[0]
	switch {
	case best.sim >= matchThreshold:
		id, name := best.cand.ID, best.cand.Name
		return types.MatchResult{Query: query, MatchedID: &id, MatchedName: &name, Similarity: best.sim, Decision: types.DecisionMatch}
	case best.sim >= ambiguousThreshold:
		id, name := best.cand.ID, best.cand.Name
		return types.MatchResult{Query: query, MatchedID: &id, MatchedName: &name, Similarity: best.sim, Decision: types.DecisionAmbiguous}
	default:
		return types.MatchResult{Query: query, Similarity: best.sim, Decision: types.DecisionAutoCreate}
	}
}

// MatchPerson resolves a person name against a cached workspace user
// list; below threshold, the raw string is surfaced without a linked
// identifier.
func (l *Linker) MatchPerson(query string, candidates []Candidate) types.MatchResult {
	nq := normalize(query)
	var best Candidate
	bestSim := -1.0
	for _, c := range candidates {
		sim := smetrics.JaroWinkler(nq, normalize(c.Name), 0.7, 4)
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	if bestSim >= personThreshold {
		id, name := best.ID, best.Name
		return types.MatchResult{Query: query, MatchedID: &id, MatchedName: &name, Similarity: bestSim, Decision: types.DecisionMatch}
	}
	if bestSim < 0 {
		bestSim = 0
	}
	return types.MatchResult{Query: query, Similarity: bestSim, Decision: types.DecisionReject}
}

// NewCompanyFor builds the auto-create payload for a query that
// scored below the ambiguous threshold, per spec §4.8.
func NewCompanyFor(query string) types.CompanyRecord {
	return types.CompanyRecord{Name: query, IsAffiliate: false, IsPortfolio: false, Source: "auto"}
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
