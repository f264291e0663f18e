// Package vertex adapts Google's Gemini models via the official
// google.golang.org/genai client, which speaks both the Gemini Developer
// API and Vertex AI depending on ClientConfig — grounded on the same
// official-SDK-over-hand-rolled-HTTP pattern used throughout
// internal/catalog/provider (spec.md §6.3).
package vertex

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

const (
	Gateway      = "vertex"
	ProviderSlug = "google"
)

type Provider struct {
	client       *genai.Client
	normalizeOpt catalog.NormalizeOptions
}

// New builds a Provider. When project is non-empty it talks to Vertex AI
// with project and location; otherwise it falls back to the Gemini Developer API with
// apiKey (spec.md SPEC_FULL.md domain stack: google.golang.org/genai).
func New(ctx context.Context, apiKey, project, location string) (*Provider, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey}
	if project != "" {
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = project
		cfg.Location = location
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Provider{
		client:       client,
		normalizeOpt: catalog.NormalizeOptions{DefaultContextLength: 1_000_000},
	}, nil
}

func (p *Provider) Gateway() string { return Gateway }
func (p *Provider) Slug() string    { return ProviderSlug }

func (p *Provider) Fetch(ctx context.Context) ([]domain.ModelRecord, error) {
	now := time.Now()
	var out []domain.ModelRecord

	pager, err := p.client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, providererr.Classify(0, 0, err)
	}
	for _, m := range pager.Items {
		rec := domain.ModelRecord{
			ID:            m.Name,
			ProviderSlug:  ProviderSlug,
			SourceGateway: Gateway,
			Name:          m.DisplayName,
			ContextLength: int(m.InputTokenLimit),
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

func toContents(req domain.InternalChatRequest) []*genai.Content {
	out := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		text, _ := m.Content.(string)
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}})
	}
	return out
}

func genConfig(req domain.InternalChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}
	return cfg
}

func (p *Provider) ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, nativeModelID, toContents(req), genConfig(req))
	if err != nil {
		return domain.InternalChatResponse{}, providererr.Classify(0, 0, err)
	}
	if len(resp.Candidates) == 0 {
		return domain.InternalChatResponse{}, providererr.Classify(0, 0, errNoCandidates{})
	}

	text := resp.Text()
	var inputTokens, outputTokens int64
	if resp.UsageMetadata != nil {
		inputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	return domain.InternalChatResponse{
		Model:        nativeModelID,
		Message:      domain.Message{Role: "assistant", Content: text},
		FinishReason: string(resp.Candidates[0].FinishReason),
		Usage: domain.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
		ProviderUsed:     ProviderSlug,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// StreamChatCompletion adapts genai's Go-iterator (iter.Seq2) stream into
// the gateway's normalized channel — the "async iterator" interop case
// noted in spec.md §9.
func (p *Provider) StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error) {
	out := make(chan domain.InternalStreamChunk)

	go func() {
		defer close(out)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, nativeModelID, toContents(req), genConfig(req)) {
			if err != nil {
				select {
				case out <- domain.InternalStreamChunk{FinishReason: "error"}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			chunk := domain.InternalStreamChunk{
				Delta:        domain.Message{Role: "assistant", Content: resp.Text()},
				FinishReason: string(resp.Candidates[0].FinishReason),
			}
			if resp.UsageMetadata != nil {
				chunk.Usage = &domain.Usage{
					PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

type errNoCandidates struct{}

func (errNoCandidates) Error() string { return "provider returned no candidates" }
