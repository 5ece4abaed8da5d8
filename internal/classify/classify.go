// Package classify implements the classification stage: deterministic
// rules over the linked company flags for the type and intensity tags,
// plus one LLM call (via the orchestrator) for the free-text summary
// and the intensity confidence. The type
// tag set is injected from the knowledge base's discovered schema
// (spec §6: "the system MUST NOT hard-code these tags").
package classify

import (
	"context"
	"strings"

	"github.com/limmutable/collabiq/internal/orchestrator"
	"github.com/limmutable/collabiq/internal/types"
)

// Classifier produces a Classification from a linked extraction.
type Classifier struct {
	orch     *orchestrator.Orchestrator
	typeTags []string // discovered from KB schema, never hard-coded
}

// New constructs a Classifier bound to the given orchestrator and the
// type tags discovered at schema-discovery time.
func New(orch *orchestrator.Orchestrator, typeTags []string) *Classifier {
	return &Classifier{orch: orch, typeTags: typeTags}
}

// TypeHintToTag maps a CompanyRecord's classification hint to one of
// the discovered type tags: the tag equal to the hint name (case
// insensitive), else the first discovered tag, else the hint name
// itself when no tags were discovered.
func (c *Classifier) TypeHintToTag(hint types.ClassificationHint) string {
	for _, tag := range c.typeTags {
		if strings.EqualFold(tag, string(hint)) {
			return tag
		}
	}
	if len(c.typeTags) > 0 {
		return c.typeTags[0]
	}
	return string(hint)
}

// Classify derives the Classification for one email: the type and
// intensity tags from the linked company's hint (deterministic), and
// the summary plus the intensity confidence from one additional
// orchestrator call over the cleaned body.
func (c *Classifier) Classify(ctx context.Context, cleanedBody, emailID string, hint types.ClassificationHint) (types.Classification, error) {
	tag := c.TypeHintToTag(hint)

	entities, err := c.orch.Extract(ctx, summaryPrompt(cleanedBody), emailID)
	if err != nil {
		return types.Classification{}, err
	}

	summary := ""
	if entities.Details != nil {
		summary = *entities.Details
	}
	words := strings.Fields(summary)

	return types.Classification{
		Type:                tag,
		TypeConfidence:      1.0, // deterministic from the linked company record
		Intensity:           inferIntensity(hint),
		IntensityConfidence: entities.Confidence.Mean(),
		Summary:             summary,
		SummaryWordCount:    len(words),
		KeyEntitiesPreserved: [5]bool{
			entities.Person != nil, entities.Startup != nil, entities.Partner != nil,
			entities.Details != nil, entities.Date != nil,
		},
	}, nil
}

func summaryPrompt(cleanedBody string) string {
	return cleanedBody
}

// inferIntensity derives the collaboration intensity tag from the
// company classification hint: affiliate/portfolio companies default
// to a deeper relationship than a first-contact company.
func inferIntensity(hint types.ClassificationHint) types.Intensity {
	switch hint {
	case types.HintBoth:
		return types.IntensityAcquire
	case types.HintPortfolio:
		return types.IntensityInvest
	case types.HintAffiliate:
		return types.IntensityCooperate
	default:
		return types.IntensityUnderstand
	}
}
