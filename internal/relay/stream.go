package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/pricing"
)

// StreamResult is delivered once after the chunk channel closes and the
// charge/persist tail has run, carrying the provider used, whether the
// stream was canceled, and any stream or charge error. Usage itself is
// charged and persisted inside the relay and is not part of the result.
type StreamResult struct {
	Provider string
	Canceled bool
	Err      error
}

// ChatCompletionStream runs steps 1-5 and resolves the primary provider
// only — streams cannot be retried mid-stream without losing
// already-emitted tokens (spec.md §4.10 "Streaming sequence", §4.8). The
// returned channel is closed when the stream ends; the caller must drain
// it to completion (or cancel ctx) to trigger the charge/persist tail,
// delivered on result once chunks stops producing.
func (h *Handler) ChatCompletionStream(ctx context.Context, apiKey string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, <-chan StreamResult, error) {
	requestID := uuid.NewString()
	start := time.Now()

	user, _, isTrial, resolved, err := h.preflight(ctx, apiKey, req)
	if err != nil {
		return nil, nil, err
	}

	slug, native, provider, ok := h.router.ResolvePrimary(req.Model)
	if !ok {
		return nil, nil, fmt.Errorf("relay: no provider available for %s", req.Model)
	}

	upstream, err := provider.StreamChatCompletion(ctx, native, req)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan domain.InternalStreamChunk, 8)
	result := make(chan StreamResult, 1)

	go h.pumpStream(ctx, requestID, start, user, isTrial, req, resolved, slug, upstream, out, result)
	return out, result, nil
}

// pumpStream consumes the provider's normalized channel, forwards every
// chunk in order (spec.md §4.10 "Ordering guarantees"), and on
// termination (upstream close or ctx cancellation) runs the usage/cost/
// charge/persist tail exactly once.
func (h *Handler) pumpStream(
	ctx context.Context, requestID string, start time.Time,
	user domain.User, isTrial bool, req domain.InternalChatRequest, resolved pricing.Resolved,
	providerSlug string, upstream <-chan domain.InternalStreamChunk,
	out chan<- domain.InternalStreamChunk, result chan<- StreamResult,
) {
	defer close(out)
	defer close(result)

	var (
		promptChars, completionChars int
		usage                        domain.Usage
		sawUsage                     bool
		canceled                     bool
		streamErr                    error
	)
	for _, m := range req.Messages {
		if s, ok := m.Content.(string); ok {
			promptChars += len(s)
		}
	}

	for {
		select {
		case <-ctx.Done():
			canceled = true
			streamErr = ctx.Err()
			goto drained
		case chunk, ok := <-upstream:
			if !ok {
				goto drained
			}
			if content, ok := chunk.Delta.Content.(string); ok {
				completionChars += len(content)
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
				sawUsage = true
			}
			if chunk.FinishReason == "error" {
				streamErr = fmt.Errorf("relay: upstream stream error")
			}
			out <- chunk
		}
	}

drained:
	if !sawUsage {
		prompt, completion := EstimateFromChars(promptChars, completionChars)
		usage = domain.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	} else if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	total, input, output := pricing.Cost(usage, resolved)
	if isTrial && !resolved.Found {
		total = h.pricing.FlatCost(usage)
		input, output = decimal.Zero, decimal.Zero
	}

	elapsed := time.Since(start)
	status := domain.StatusCompleted
	errMsg := ""
	if canceled {
		status = domain.StatusPartial
	}
	if streamErr != nil && !canceled {
		status = domain.StatusFailed
		errMsg = streamErr.Error()
	}

	// Best-effort charge for tokens already emitted, even on
	// cancellation (spec.md §4.10 "Cancellation"). A charge failure here
	// is a post-success accounting failure (spec.md §7) and must never
	// be silently absorbed: it flips the persisted status to failed and
	// is surfaced on result regardless of how the stream itself ended.
	chargeErr := h.charge(context.Background(), user, isTrial, req.Model, usage, total, elapsed.Milliseconds())
	if chargeErr != nil {
		logging.Error(ctx, "stream charge failed", zap.String("request_id", requestID), zap.Error(chargeErr))
		status = domain.StatusFailed
		errMsg = errors.Wrap(ErrChargeFailed, chargeErr.Error()).Error()
		if streamErr == nil {
			streamErr = ErrChargeFailed
		}
	}
	metrics.Global().RecordCost(string(user.Tier), req.Model, mustFloat(total))

	h.persist(ctx, domain.ChatRequestRecord{
		RequestID: requestID, UserID: user.ID, APIKeyID: user.APIKeyID, Model: req.Model, Provider: providerSlug,
		InputTokens: usage.PromptTokens, OutputTokens: usage.CompletionTokens,
		ProcessingTimeMS: elapsed.Milliseconds(), Status: status, ErrorMessage: errMsg, CreatedAt: time.Now(),
	})
	h.logSlow(ctx, requestID, elapsed)

	result <- StreamResult{Provider: providerSlug, Canceled: canceled, Err: streamErr}
}
