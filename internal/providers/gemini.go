package providers

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/limmutable/collabiq/internal/types"
	"github.com/limmutable/collabiq/internal/xerrors"
)

// GeminiAdapter extracts entities via the Gemini API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// NewGeminiAdapter constructs a GeminiAdapter for the given API key
// and model name (e.g. "gemini-1.5-flash").
func NewGeminiAdapter(ctx context.Context, apiKey, model string) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, xerrors.Critical("failed to construct gemini client", err).WithProvider("gemini")
	}
	return &GeminiAdapter{client: client, model: model}, nil
}

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) Extract(ctx context.Context, cleanedText, emailID string) (types.ExtractedEntities, types.Usage, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.model,
		genai.Text(extractionPrompt(cleanedText)),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return types.ExtractedEntities{}, types.Usage{}, classifyGeminiErr(err)
	}

	text := resp.Text()
	payload, perr := parsePayload([]byte(text))
	if perr != nil {
		return types.ExtractedEntities{}, types.Usage{}, xerrors.Permanent("gemini response not valid structured output", perr).WithProvider(a.Name())
	}

	entities := toEntities(a.Name(), emailID, payload)
	entities.ExtractedAt = time.Now()

	var usage types.Usage
	if resp.UsageMetadata != nil {
		usage = types.Usage{
			InTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return entities, usage, nil
}

// classifyGeminiErr maps the genai SDK's APIError into the classified
// taxonomy. The genai SDK surfaces vendor errors as *genai.APIError
// carrying an HTTP-like status code.
func classifyGeminiErr(err error) error {
	var apiErr *genai.APIError
	if !errorsAs(err, &apiErr) {
		return xerrors.Transient("gemini call failed", err).WithProvider("gemini")
	}

	switch {
	case apiErr.Code == 401:
		return xerrors.Critical("gemini authentication failed", err).WithProvider("gemini").WithHTTPStatus(apiErr.Code)
	case apiErr.Code == 429 || apiErr.Code >= 500:
		return xerrors.Transient("gemini call failed", err).WithProvider("gemini").WithHTTPStatus(apiErr.Code)
	default:
		return xerrors.Permanent("gemini rejected request", err).WithProvider("gemini").WithHTTPStatus(apiErr.Code)
	}
}
