// Package coze adapts Coze's bot/agent chat API via the official
// coze-dev/coze-go client. Coze exposes published bots rather than raw
// foundation models, so Fetch lists the caller's published bots and
// treats each bot id as a "model" (spec.md §6.3 "provider adaptor";
// grounded on the BaSui01-agentflow pack repo's bot-oriented usage of this
// SDK).
package coze

import (
	"context"
	"time"

	cozego "github.com/coze-dev/coze-go"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

const (
	Gateway      = "coze"
	ProviderSlug = "coze"
)

type Provider struct {
	client       cozego.CozeAPI
	spaceID      string
	normalizeOpt catalog.NormalizeOptions
}

func New(apiToken, spaceID string) *Provider {
	auth := cozego.NewTokenAuth(apiToken)
	client := cozego.NewCozeAPI(auth)
	return &Provider{
		client:       client,
		spaceID:      spaceID,
		normalizeOpt: catalog.NormalizeOptions{DefaultContextLength: 32_000},
	}
}

func (p *Provider) Gateway() string { return Gateway }
func (p *Provider) Slug() string    { return ProviderSlug }

func (p *Provider) Fetch(ctx context.Context) ([]domain.ModelRecord, error) {
	resp, err := p.client.Bots.PublishedList(ctx, &cozego.ListPublishedBotsReq{SpaceID: p.spaceID})
	if err != nil {
		return nil, providererr.Classify(0, 0, err)
	}

	now := time.Now()
	var out []domain.ModelRecord
	for _, bot := range resp.SpaceBots {
		rec := domain.ModelRecord{
			ID:            bot.BotID,
			ProviderSlug:  ProviderSlug,
			SourceGateway: Gateway,
			Name:          bot.BotName,
			Description:   bot.Description,
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

func lastUserMessage(req domain.InternalChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			if text, ok := req.Messages[i].Content.(string); ok {
				return text
			}
		}
	}
	return ""
}

func (p *Provider) ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	start := time.Now()

	resp, err := p.client.Chat.CreateAndPoll(ctx, &cozego.CreateChatsReq{
		BotID:  nativeModelID,
		UserID: "gatewayz",
		Messages: []*cozego.Message{
			cozego.BuildUserQuestionText(lastUserMessage(req), nil),
		},
	})
	if err != nil {
		return domain.InternalChatResponse{}, providererr.Classify(0, 0, err)
	}

	var text string
	for _, m := range resp.Messages {
		if m.Type == cozego.MessageTypeAnswer {
			text += m.Content
		}
	}

	var inputTokens, outputTokens int64
	if resp.Chat.Usage != nil {
		inputTokens = int64(resp.Chat.Usage.PromptTokens)
		outputTokens = int64(resp.Chat.Usage.CompletionTokens)
	}

	return domain.InternalChatResponse{
		ID:           resp.Chat.ID,
		Model:        nativeModelID,
		Message:      domain.Message{Role: "assistant", Content: text},
		FinishReason: "stop",
		Usage: domain.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
		ProviderUsed:     ProviderSlug,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// StreamChatCompletion adapts Coze's server-sent-event stream (delta
// messages followed by a completed event carrying usage) into the
// gateway's normalized channel.
func (p *Provider) StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error) {
	out := make(chan domain.InternalStreamChunk)

	stream, err := p.client.Chat.Stream(ctx, &cozego.CreateChatsReq{
		BotID:  nativeModelID,
		UserID: "gatewayz",
		Messages: []*cozego.Message{
			cozego.BuildUserQuestionText(lastUserMessage(req), nil),
		},
	})
	if err != nil {
		close(out)
		return out, providererr.Classify(0, 0, err)
	}

	go func() {
		defer close(out)
		defer stream.Close()
		for {
			event, err := stream.Recv()
			if err != nil {
				break
			}
			switch event.Event {
			case cozego.ChatEventConversationMessageDelta:
				select {
				case out <- domain.InternalStreamChunk{Delta: domain.Message{Role: "assistant", Content: event.Message.Content}}:
				case <-ctx.Done():
					return
				}
			case cozego.ChatEventConversationChatCompleted:
				var usage *domain.Usage
				if event.Chat.Usage != nil {
					usage = &domain.Usage{
						PromptTokens:     int64(event.Chat.Usage.PromptTokens),
						CompletionTokens: int64(event.Chat.Usage.CompletionTokens),
						TotalTokens:      int64(event.Chat.Usage.PromptTokens + event.Chat.Usage.CompletionTokens),
					}
				}
				select {
				case out <- domain.InternalStreamChunk{FinishReason: "stop", Usage: usage}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return out, nil
}
