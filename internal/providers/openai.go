package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/limmutable/collabiq/internal/types"
	"github.com/limmutable/collabiq/internal/xerrors"
)

// OpenAIAdapter extracts entities via the Chat Completions API with
// JSON-mode structured output.
type OpenAIAdapter struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAIAdapter constructs an OpenAIAdapter.
func NewOpenAIAdapter(apiKey string, model openai.ChatModel) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) Extract(ctx context.Context, cleanedText, emailID string) (types.ExtractedEntities, types.Usage, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(extractionPrompt(cleanedText)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return types.ExtractedEntities{}, types.Usage{}, classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return types.ExtractedEntities{}, types.Usage{}, xerrors.Permanent("openai returned no choices", nil).WithProvider(a.Name())
	}

	payload, perr := parsePayload([]byte(resp.Choices[0].Message.Content))
	if perr != nil {
		return types.ExtractedEntities{}, types.Usage{}, xerrors.Permanent("openai response not valid structured output", perr).WithProvider(a.Name())
	}

	entities := toEntities(a.Name(), emailID, payload)
	entities.ExtractedAt = time.Now()
	usage := types.Usage{InTokens: resp.Usage.PromptTokens, OutTokens: resp.Usage.CompletionTokens}
	return entities, usage, nil
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if !errorsAs(err, &apiErr) {
		return xerrors.Transient("openai call failed", err).WithProvider("openai")
	}

	status := apiErr.StatusCode
	switch {
	case status == http.StatusUnauthorized:
		return xerrors.Critical("openai authentication failed", err).WithProvider("openai").WithHTTPStatus(status)
	case status == http.StatusTooManyRequests || status >= 500:
		e := xerrors.Transient("openai call failed", err).WithProvider("openai").WithHTTPStatus(status)
		if ra := apiErr.Response.Header.Get("Retry-After"); ra != "" {
			if secs, ok := parseRetryAfter(ra); ok {
				e = e.WithRetryAfter(secs)
			}
		}
		return e
	default:
		return xerrors.Permanent("openai rejected request", err).WithProvider("openai").WithHTTPStatus(status)
	}
}
