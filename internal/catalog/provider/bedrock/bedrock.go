// Package bedrock adapts AWS Bedrock via aws-sdk-go-v2: bedrock.Client for
// foundation-model listing and bedrockruntime.Client (Converse API) for
// inference, one client pair per AWS region, coordinated by
// internal/catalog/provider/region's failover selector
// (SPEC_FULL.md supplemented feature; spec.md §6.3 "provider adaptor").
package bedrock

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/region"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

const (
	Gateway      = "bedrock"
	ProviderSlug = "bedrock"
)

// Credentials is one region's AWS access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

type regionClients struct {
	listing  *bedrock.Client
	runtime  *bedrockruntime.Client
}

type Provider struct {
	selector     *region.Selector
	clients      map[string]regionClients
	normalizeOpt catalog.NormalizeOptions
}

// New builds a Provider across the given regions, each with its own
// credentials; defaultOrder controls region failover priority when the
// caller does not request an explicit region.
func New(defaultOrder []string, creds map[string]Credentials) *Provider {
	keys := make(map[string]string, len(creds))
	clients := make(map[string]regionClients, len(creds))
	for r, c := range creds {
		if c.AccessKeyID == "" {
			continue
		}
		keys[r] = c.AccessKeyID
		cfg := aws.Config{
			Region:      r,
			Credentials: credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		}
		clients[r] = regionClients{
			listing: bedrock.NewFromConfig(cfg),
			runtime: bedrockruntime.NewFromConfig(cfg),
		}
	}
	return &Provider{
		selector:     region.NewSelector(defaultOrder, keys),
		clients:      clients,
		normalizeOpt: catalog.NormalizeOptions{DefaultContextLength: 100_000},
	}
}

func (p *Provider) Gateway() string { return Gateway }
func (p *Provider) Slug() string    { return ProviderSlug }

// Fetch lists foundation models from the first usable region — catalog
// membership does not vary meaningfully by region for the same account.
func (p *Provider) Fetch(ctx context.Context) ([]domain.ModelRecord, error) {
	candidates := p.selector.Candidates("")
	if len(candidates) == 0 {
		return nil, providererr.Classify(0, 0, errNoRegion{})
	}

	r := candidates[0]
	out, err := p.clients[r].listing.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, providererr.Classify(0, 0, err)
	}

	now := time.Now()
	var records []domain.ModelRecord
	for _, m := range out.ModelSummaries {
		rec := domain.ModelRecord{
			ID:            aws.ToString(m.ModelId),
			ProviderSlug:  ProviderSlug,
			SourceGateway: Gateway,
			Name:          aws.ToString(m.ModelName),
			FetchedAt:     now,
		}
		normalized, keep := catalog.Normalize(rec, p.normalizeOpt)
		if !keep {
			continue
		}
		records = append(records, normalized)
	}
	p.selector.RecordSuccess(r)
	return records, nil
}

func toConverseMessages(req domain.InternalChatRequest) []brtypes.Message {
	out := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			continue
		}
		text, _ := m.Content.(string)
		role := brtypes.ConversationRoleUser
		if m.Role == "assistant" {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		})
	}
	return out
}

func systemBlocks(req domain.InternalChatRequest) []brtypes.SystemContentBlock {
	for _, m := range req.Messages {
		if m.Role == "system" {
			text, _ := m.Content.(string)
			return []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: text}}
		}
	}
	return nil
}

// callWithFailover runs fn against each candidate region in order, moving
// to the next on auth failure or quota exhaustion (SPEC_FULL.md
// supplemented feature).
func (p *Provider) callWithFailover(ctx context.Context, explicitRegion string, fn func(r string, rc regionClients) error) (string, error) {
	candidates := p.selector.Candidates(explicitRegion)
	if len(candidates) == 0 {
		return "", providererr.Classify(0, 0, errNoRegion{})
	}

	var lastErr error
	for _, r := range candidates {
		err := fn(r, p.clients[r])
		if err == nil {
			p.selector.RecordSuccess(r)
			return r, nil
		}
		lastErr = err
		classified := providererr.Classify(0, 0, err)
		switch classified.Category {
		case providererr.AuthFailure:
			p.selector.RecordAuthFailure(r)
			continue
		case providererr.RateLimited:
			p.selector.RecordQuotaFailure(r, 60*time.Second)
			continue
		default:
			return "", classified
		}
	}
	return "", providererr.Classify(0, 0, lastErr)
}

func (p *Provider) ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	start := time.Now()
	var resp *bedrockruntime.ConverseOutput

	_, err := p.callWithFailover(ctx, "", func(r string, rc regionClients) error {
		in := &bedrockruntime.ConverseInput{
			ModelId:  aws.String(nativeModelID),
			Messages: toConverseMessages(req),
			System:   systemBlocks(req),
		}
		var callErr error
		resp, callErr = rc.runtime.Converse(ctx, in)
		return callErr
	})
	if err != nil {
		return domain.InternalChatResponse{}, err
	}

	var text string
	if msg, ok := resp.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	}

	var inputTokens, outputTokens int64
	if resp.Usage != nil {
		inputTokens = int64(aws.ToInt32(resp.Usage.InputTokens))
		outputTokens = int64(aws.ToInt32(resp.Usage.OutputTokens))
	}

	return domain.InternalChatResponse{
		Model:        nativeModelID,
		Message:      domain.Message{Role: "assistant", Content: text},
		FinishReason: string(resp.StopReason),
		Usage: domain.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
		ProviderUsed:     ProviderSlug,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// StreamChatCompletion uses ConverseStream, adapting its event-stream
// reader into the gateway's normalized channel.
func (p *Provider) StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error) {
	out := make(chan domain.InternalStreamChunk)

	region, err := p.callWithFailover(ctx, "", func(r string, rc regionClients) error {
		return nil // region selection only; stream opened below once chosen
	})
	if err != nil {
		close(out)
		return out, err
	}
	rc := p.clients[region]

	stream, err := rc.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(nativeModelID),
		Messages: toConverseMessages(req),
		System:   systemBlocks(req),
	})
	if err != nil {
		close(out)
		return out, providererr.Classify(0, 0, err)
	}

	go func() {
		defer close(out)
		var inputTokens, outputTokens int64
		reader := stream.GetStream().Reader
		events := reader.Events()
		for ev := range events {
			switch e := ev.(type) {
			case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
				if d, ok := e.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok {
					select {
					case out <- domain.InternalStreamChunk{Delta: domain.Message{Role: "assistant", Content: d.Value}}:
					case <-ctx.Done():
						return
					}
				}
			case *brtypes.ConverseStreamOutputMemberMetadata:
				if e.Value.Usage != nil {
					inputTokens = int64(aws.ToInt32(e.Value.Usage.InputTokens))
					outputTokens = int64(aws.ToInt32(e.Value.Usage.OutputTokens))
				}
			case *brtypes.ConverseStreamOutputMemberMessageStop:
				select {
				case out <- domain.InternalStreamChunk{
					FinishReason: string(e.Value.StopReason),
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
		if err := reader.Err(); err != nil {
			select {
			case out <- domain.InternalStreamChunk{FinishReason: "error"}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

type errNoRegion struct{}

func (errNoRegion) Error() string { return "no usable bedrock region configured" }
