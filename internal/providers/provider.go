// Package providers implements the three ProviderAdapter
// implementations (Claude, OpenAI, Gemini) behind a uniform call
// surface. Grounded on the teacher's llm/provider.go Provider
// interface shape; unlike the teacher, which hand-rolls HTTP/SSE
// clients per vendor (providers/anthropic/provider.go), these adapters
// call the real vendor SDKs — the LLM HTTP wire format is an
// out-of-scope external collaborator per spec §1, so this module
// delegates it to github.com/anthropics/anthropic-sdk-go,
// github.com/openai/openai-go/v3, and google.golang.org/genai rather
// than reimplementing it.
package providers

import (
	"context"
	"encoding/json"

	"github.com/limmutable/collabiq/internal/types"
)

// Schema describes the structured-output shape an adapter must
// request from its vendor, built from the five core fields.
type Schema struct {
	Fields []string
}

// CoreSchema is the fixed five-field extraction schema every adapter
// requests structured output for.
var CoreSchema = Schema{Fields: []string{"person", "startup", "partner", "details", "date"}}

// Adapter is the uniform call surface over one LLM vendor: extract a
// CleanedMessage's body into ExtractedEntities plus token usage.
// Adapters are stateless and never retry themselves (spec §4.6); all
// retries belong to internal/retry.Executor.
type Adapter interface {
	Name() string
	Extract(ctx context.Context, cleanedText string, emailID string) (types.ExtractedEntities, types.Usage, error)
}

// extractionPayload is the structured JSON shape every vendor is
// asked to return; confidences are required per-field floats in
// [0, 1].
type extractionPayload struct {
	Person     *string `json:"person"`
	Startup    *string `json:"startup"`
	Partner    *string `json:"partner"`
	Details    *string `json:"details"`
	Date       *string `json:"date"`
	Confidence struct {
		Person  float64 `json:"person"`
		Startup float64 `json:"startup"`
		Partner float64 `json:"partner"`
		Details float64 `json:"details"`
		Date    float64 `json:"date"`
	} `json:"confidence"`
}

func parsePayload(raw []byte) (extractionPayload, error) {
	var p extractionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return extractionPayload{}, err
	}
	return p, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toEntities(provider, emailID string, p extractionPayload) types.ExtractedEntities {
	return types.ExtractedEntities{
		Person:  p.Person,
		Startup: p.Startup,
		Partner: p.Partner,
		Details: p.Details,
		Date:    p.Date,
		Confidence: types.FieldConfidence{
			Person:  clamp01(p.Confidence.Person),
			Startup: clamp01(p.Confidence.Startup),
			Partner: clamp01(p.Confidence.Partner),
			Details: clamp01(p.Confidence.Details),
			Date:    clamp01(p.Confidence.Date),
		},
		Provider: provider,
		EmailID:  emailID,
	}
}

// extractionPrompt builds the instruction every adapter sends,
// requesting strict structured JSON output for the five core fields.
func extractionPrompt(cleanedText string) string {
	return "Extract the following fields from the email body as strict JSON " +
		"matching {person, startup, partner, details, date, confidence:{person,startup,partner,details,date}}. " +
		"Each confidence is a float in [0,1]. Omit a field (null) if not present.\n\nEmail body:\n" + cleanedText
}
