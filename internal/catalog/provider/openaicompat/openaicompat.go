// Package openaicompat is the shared base for every upstream that speaks
// the OpenAI wire format (OpenAI itself, and any OpenAI-compatible
// aggregator gateway). It is grounded on the teacher's
// relay/adaptor/openai package's separation of "build the request" from
// "call the transport": here the transport is the official openai-go SDK
// client instead of a hand-rolled http.Client, per spec.md's "never
// reimplement a provider's API from scratch".
package openaicompat

import (
	"context"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

// Provider is one OpenAI-wire-format upstream: a source gateway for
// catalog listing and a ChatProvider for inference.
type Provider struct {
	gateway      string
	providerSlug string
	client       openai.Client
	normalizeOpt catalog.NormalizeOptions
}

// New builds a Provider against baseURL with apiKey, identified by gateway
// (the catalog source) and providerSlug (the breaker/router identity).
func New(gateway, providerSlug, baseURL, apiKey string, opts catalog.NormalizeOptions) *Provider {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &Provider{gateway: gateway, providerSlug: providerSlug, client: client, normalizeOpt: opts}
}

func (p *Provider) Gateway() string { return p.gateway }
func (p *Provider) Slug() string    { return p.providerSlug }

// Fetch lists models via GET /models and normalizes them (spec.md §4.3).
// openai-go's model listing carries no pricing, so records flow through
// Normalize with zero pricing and pick up their price from the manual
// overlay or a sibling aggregator gateway that does carry pricing.
func (p *Provider) Fetch(ctx context.Context) ([]domain.ModelRecord, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, providererr.Classify(statusCodeOf(err), 0, err)
	}

	now := time.Now()
	var out []domain.ModelRecord
	for _, m := range page.Data {
		rec := domain.ModelRecord{
			ID:           m.ID,
			ProviderSlug: p.providerSlug,
			SourceGateway: p.gateway,
			Name:          m.ID,
			FetchedAt:     now,
		}
		normalized, keep := catalog.Normalize(rec, p.normalizeOpt)
		if !keep {
			continue
		}
		out = append(out, normalized)
	}
	return out, nil
}

func toMessages(msgs []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		content, _ := m.Content.(string)
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(content))
		case "assistant":
			out = append(out, openai.AssistantMessage(content))
		case "tool":
			out = append(out, openai.ToolMessage(content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(content))
		}
	}
	return out
}

func toParams(nativeModelID string, req domain.InternalChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    nativeModelID,
		Messages: toMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	return params
}

// ChatCompletion performs one non-streaming call.
func (p *Provider) ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	start := time.Now()
	params := toParams(nativeModelID, req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.InternalChatResponse{}, providererr.Classify(statusCodeOf(err), 0, err)
	}
	if len(resp.Choices) == 0 {
		return domain.InternalChatResponse{}, providererr.Classify(0, 0, errEmptyChoices)
	}

	choice := resp.Choices[0]
	out := domain.InternalChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Message:      domain.Message{Role: "assistant", Content: choice.Message.Content},
		FinishReason: string(choice.FinishReason),
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		ProviderUsed:     p.providerSlug,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
	return out, nil
}

// StreamChatCompletion adapts the SDK's synchronous server-sent-event
// iterator into the gateway's normalized chunk channel (spec.md §4.10).
func (p *Provider) StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error) {
	params := toParams(nativeModelID, req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan domain.InternalStreamChunk)

	go func() {
		defer close(out)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			select {
			case out <- domain.InternalStreamChunk{
				Delta:        domain.Message{Role: "assistant", Content: c.Delta.Content},
				FinishReason: string(c.FinishReason),
				Usage:        usageFromChunk(chunk),
			}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- domain.InternalStreamChunk{FinishReason: "error"}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func usageFromChunk(chunk openai.ChatCompletionChunk) *domain.Usage {
	if chunk.Usage.TotalTokens == 0 {
		return nil
	}
	return &domain.Usage{
		PromptTokens:     chunk.Usage.PromptTokens,
		CompletionTokens: chunk.Usage.CompletionTokens,
		TotalTokens:      chunk.Usage.TotalTokens,
	}
}

var errEmptyChoices = errEmptyChoicesT{}

type errEmptyChoicesT struct{}

func (errEmptyChoicesT) Error() string { return "provider returned no choices" }

func statusCodeOf(err error) int {
	var apiErr *openai.Error
	if ok := asOpenAIError(err, &apiErr); ok {
		return apiErr.StatusCode
	}
	return 0
}

func asOpenAIError(err error, target **openai.Error) bool {
	for err != nil {
		if e, ok := err.(*openai.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// PricingFromCents builds a Pricing from the per-token USD rates, used by
// a sibling aggregator fetcher that does carry pricing for these model ids
// (e.g. openrouter) to enrich an OpenAI-compat fetch with no pricing of
// its own.
func PricingFromCents(prompt, completion decimal.Decimal) domain.Pricing {
	return domain.Pricing{Prompt: &prompt, Completion: &completion}
}
