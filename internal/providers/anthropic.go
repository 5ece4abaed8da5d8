package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/limmutable/collabiq/internal/types"
	"github.com/limmutable/collabiq/internal/xerrors"
)

// ClaudeAdapter extracts entities via the Anthropic Messages API.
// Grounded on the teacher's providers/anthropic/provider.go for
// status-code-to-classification mapping; the hand-rolled HTTP/SSE
// client itself is replaced by anthropic-sdk-go per the domain-stack
// decision in SPEC_FULL.md.
type ClaudeAdapter struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeAdapter constructs a ClaudeAdapter using apiKey and model
// (e.g. anthropic.ModelClaude3_5SonnetLatest).
func NewClaudeAdapter(apiKey string, model anthropic.Model) *ClaudeAdapter {
	return &ClaudeAdapter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (a *ClaudeAdapter) Name() string { return "claude" }

// Extract calls the Messages API with a structured-output instruction
// and parses the assistant's JSON reply.
func (a *ClaudeAdapter) Extract(ctx context.Context, cleanedText, emailID string) (types.ExtractedEntities, types.Usage, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(extractionPrompt(cleanedText))),
		},
	})
	if err != nil {
		return types.ExtractedEntities{}, types.Usage{}, classifyAnthropicErr(err)
	}

	var raw []byte
	for _, block := range msg.Content {
		if block.Type == "text" {
			raw = append(raw, []byte(block.Text)...)
		}
	}
	payload, perr := parsePayload(raw)
	if perr != nil {
		return types.ExtractedEntities{}, types.Usage{}, xerrors.Permanent("claude response not valid structured output", perr).WithProvider(a.Name())
	}

	entities := toEntities(a.Name(), emailID, payload)
	entities.ExtractedAt = time.Now()
	usage := types.Usage{InTokens: msg.Usage.InputTokens, OutTokens: msg.Usage.OutputTokens}
	return entities, usage, nil
}

// classifyAnthropicErr maps the SDK's error into the classified
// taxonomy, following the status-code grouping the teacher's
// mapClaudeError used (401 Critical; 400/403/404 Permanent;
// 429/5xx Transient).
func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if !errorsAs(err, &apiErr) {
		return xerrors.Transient("claude call failed", err).WithProvider("claude")
	}

	status := apiErr.StatusCode
	switch {
	case status == http.StatusUnauthorized:
		return xerrors.Critical("claude authentication failed", err).WithProvider("claude").WithHTTPStatus(status)
	case status == http.StatusTooManyRequests || status >= 500:
		e := xerrors.Transient("claude call failed", err).WithProvider("claude").WithHTTPStatus(status)
		if ra := apiErr.Response.Header.Get("Retry-After"); ra != "" {
			if secs, ok := parseRetryAfter(ra); ok {
				e = e.WithRetryAfter(secs)
			}
		}
		return e
	default:
		return xerrors.Permanent("claude rejected request", err).WithProvider("claude").WithHTTPStatus(status)
	}
}
