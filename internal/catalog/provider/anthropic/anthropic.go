// Package anthropic adapts the Anthropic Messages API via the official
// anthropic-sdk-go client, grounded on the same adaptor-with-official-SDK
// shape as internal/catalog/provider/openaicompat (spec.md §6.3).
package anthropic

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

const (
	Gateway      = "anthropic"
	ProviderSlug = "anthropic"
)

type Provider struct {
	client       anthropic.Client
	normalizeOpt catalog.NormalizeOptions
}

func New(apiKey string) *Provider {
	return &Provider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		normalizeOpt: catalog.NormalizeOptions{
			DefaultContextLength: 200_000,
		},
	}
}

func (p *Provider) Gateway() string { return Gateway }
func (p *Provider) Slug() string    { return ProviderSlug }

func (p *Provider) Fetch(ctx context.Context) ([]domain.ModelRecord, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, providererr.Classify(0, 0, err)
	}

	now := time.Now()
	var out []domain.ModelRecord
	for _, m := range page.Data {
		rec := domain.ModelRecord{
			ID:            m.ID,
			ProviderSlug:  ProviderSlug,
			SourceGateway: Gateway,
			Name:          m.DisplayName,
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

func toParams(nativeModelID string, req domain.InternalChatRequest, stream bool) anthropic.MessageNewParams {
	maxTokens := int64(4096)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	var system string
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		content, _ := m.Content.(string)
		if m.Role == "system" {
			system = content
			continue
		}
		block := anthropic.NewTextBlock(content)
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(nativeModelID),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

func (p *Provider) ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	start := time.Now()
	params := toParams(nativeModelID, req, false)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return domain.InternalChatResponse{}, providererr.Classify(0, 0, err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return domain.InternalChatResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Message:      domain.Message{Role: "assistant", Content: text},
		FinishReason: string(msg.StopReason),
		Usage: domain.Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
			TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
		ProviderUsed:     ProviderSlug,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// StreamChatCompletion adapts the SDK's server-sent-event stream into the
// gateway's normalized chunk channel, accumulating input/output token
// counts from the message_start/message_delta events (spec.md §4.10).
func (p *Provider) StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error) {
	params := toParams(nativeModelID, req, true)
	stream := p.client.Messages.NewStreaming(ctx, params)
	out := make(chan domain.InternalStreamChunk)

	go func() {
		defer close(out)
		var inputTokens, outputTokens int64
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				inputTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Text != "" {
					select {
					case out <- domain.InternalStreamChunk{Delta: domain.Message{Role: "assistant", Content: event.Delta.Text}}:
					case <-ctx.Done():
						return
					}
				}
			case "message_delta":
				outputTokens = event.Usage.OutputTokens
				select {
				case out <- domain.InternalStreamChunk{
					FinishReason: string(event.Delta.StopReason),
					Usage: &domain.Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					},
				}:
				case <-ctx.Done():
					return
				}
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
