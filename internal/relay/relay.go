// Package relay implements the inference handler (spec.md §4.10): the
// single entry point every chat endpoint calls after protocol adaptation,
// producing a gateway-neutral InternalChatResponse or a stream of
// InternalStreamChunks. Grounded on the teacher's relay/controller
// request lifecycle (resolve user → pre-check → call channel → compute
// quota → persist log) but rebuilt against this module's auth/pricing/
// router/store seams.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/auth"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/pricing"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router"
)

// RequestStore is the subset of store.Store the handler persists to.
type RequestStore interface {
	UpsertChatCompletionRequest(ctx context.Context, rec domain.ChatRequestRecord) error
}

// ErrMissingUsage is returned when a provider response carries no usage
// counts at all (spec.md §4.10 step 6 "missing usage is an error").
var ErrMissingUsage = errors.New("relay: provider response carried no usage")

// ErrChargeFailed is returned when the provider call succeeded but
// debiting the caller's credits afterward failed (spec.md §7: accounting
// failures after a successful provider call are never silently
// suppressed).
var ErrChargeFailed = errors.New("relay: credit deduction failed after successful response")

// Slow-request logging tiers (spec.md §5, SPEC_FULL.md supplement).
const (
	slowWarn     = 30 * time.Second
	slowError    = 45 * time.Second
	slowCritical = 60 * time.Second
)

// Handler orchestrates one inference request end to end.
type Handler struct {
	auth    *auth.Service
	pricing *pricing.Service
	router  *router.Router
	store   RequestStore
	est     *Estimator

	// persistAsync, when true, fires UpsertChatCompletionRequest in a
	// background goroutine rather than inline (spec.md §4.10 step 9
	// "asynchronously if a background-task queue is available").
	persistAsync bool
}

// New builds a Handler.
func New(authSvc *auth.Service, pricingSvc *pricing.Service, r *router.Router, store RequestStore, persistAsync bool) *Handler {
	return &Handler{auth: authSvc, pricing: pricingSvc, router: r, store: store, est: NewEstimator(), persistAsync: persistAsync}
}

func defaultMaxTokens(req domain.InternalChatRequest) int64 {
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		return int64(*req.MaxTokens)
	}
	return 4096
}

// preflight runs steps 1-3 of the non-streaming sequence, shared by
// streaming: resolve the user, validate trial status, and (for non-trial
// users) enforce the credit pre-check (spec.md §4.10 steps 1,3; §4.7).
func (h *Handler) preflight(ctx context.Context, apiKey string, req domain.InternalChatRequest) (domain.User, domain.TrialRecord, bool, pricing.Resolved, error) {
	user, _, err := h.auth.ResolveUser(ctx, apiKey)
	if err != nil {
		return domain.User{}, domain.TrialRecord{}, false, pricing.Resolved{}, errors.Wrap(err, "resolve user")
	}

	trial, isTrial, err := h.auth.ValidateTrial(ctx, user)
	if err != nil {
		return domain.User{}, domain.TrialRecord{}, false, pricing.Resolved{}, errors.Wrap(err, "validate trial")
	}
	if isTrial && trial.Invalid(time.Now()) {
		return domain.User{}, domain.TrialRecord{}, false, pricing.Resolved{}, errors.New("relay: trial expired or limit exceeded")
	}

	resolved, err := h.pricing.Resolve(ctx, req.Model)
	if err != nil {
		return domain.User{}, domain.TrialRecord{}, false, pricing.Resolved{}, errors.Wrap(err, "resolve pricing")
	}

	if !isTrial {
		promptTokens := h.est.CountMessages(req.Model, req.Messages)
		maxCost := pricing.MaxCost(promptTokens, defaultMaxTokens(req), resolved)
		if err := h.auth.PreflightCheck(user, maxCost); err != nil {
			return domain.User{}, domain.TrialRecord{}, false, pricing.Resolved{}, err
		}
	}

	return user, trial, isTrial, resolved, nil
}

// charge applies §4.7's charging rule for the realized usage, picking
// the trial or paid path.
func (h *Handler) charge(ctx context.Context, user domain.User, isTrial bool, model string, usage domain.Usage, cost decimal.Decimal, latencyMS int64) error {
	if user.IsAdmin() {
		return nil
	}
	if isTrial {
		return h.auth.ChargeTrial(ctx, user.ID, usage.TotalTokens, cost)
	}
	return h.auth.ChargePaid(ctx, domain.UsageRecord{
		UserID: user.ID, APIKeyID: user.APIKeyID, Model: model, TotalTokens: usage.TotalTokens,
		CostUSD: cost, LatencyMS: latencyMS, Timestamp: time.Now(),
	})
}

func (h *Handler) persist(ctx context.Context, rec domain.ChatRequestRecord) {
	do := func() {
		if err := h.store.UpsertChatCompletionRequest(context.Background(), rec); err != nil {
			logging.Error(ctx, "persist chat completion request failed", zap.String("request_id", rec.RequestID), zap.Error(err))
		}
	}
	if h.persistAsync {
		go do()
		return
	}
	do()
}

func (h *Handler) logSlow(ctx context.Context, requestID string, elapsed time.Duration) {
	switch {
	case elapsed >= slowCritical:
		logging.Error(ctx, "slow request (critical)", zap.String("request_id", requestID), zap.Duration("elapsed", elapsed))
		metrics.Global().RecordSlowRequest("critical")
	case elapsed >= slowError:
		logging.Error(ctx, "slow request", zap.String("request_id", requestID), zap.Duration("elapsed", elapsed))
		metrics.Global().RecordSlowRequest("error")
	case elapsed >= slowWarn:
		logging.Warn(ctx, "slow request", zap.String("request_id", requestID), zap.Duration("elapsed", elapsed))
		metrics.Global().RecordSlowRequest("warning")
	}
}

// ChatCompletion runs the full non-streaming sequence (spec.md §4.10
// steps 1-10).
func (h *Handler) ChatCompletion(ctx context.Context, apiKey string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	user, _, isTrial, resolved, err := h.preflight(ctx, apiKey, req)
	if err != nil {
		return domain.InternalChatResponse{}, err
	}

	result, err := h.router.Resolve(ctx, req.Model, req)
	if err != nil {
		h.persist(ctx, domain.ChatRequestRecord{
			RequestID: requestID, UserID: user.ID, APIKeyID: user.APIKeyID, Model: req.Model,
			Status: domain.StatusFailed, ErrorMessage: err.Error(), CreatedAt: time.Now(),
		})
		return domain.InternalChatResponse{}, err
	}

	usage := result.Response.Usage
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		h.persist(ctx, domain.ChatRequestRecord{
			RequestID: requestID, UserID: user.ID, APIKeyID: user.APIKeyID, Model: req.Model, Provider: result.Provider,
			Status: domain.StatusFailed, ErrorMessage: ErrMissingUsage.Error(), CreatedAt: time.Now(),
		})
		return domain.InternalChatResponse{}, ErrMissingUsage
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	total, input, output := pricing.Cost(usage, resolved)
	if isTrial && !resolved.Found {
		total = h.pricing.FlatCost(usage)
		input, output = decimal.Zero, decimal.Zero
	}

	elapsed := time.Since(start)
	chargeErr := h.charge(ctx, user, isTrial, req.Model, usage, total, elapsed.Milliseconds())
	if chargeErr != nil {
		logging.Error(ctx, "charge failed", zap.Int64("user_id", user.ID), zap.Error(chargeErr))
	}
	metrics.Global().RecordCost(string(user.Tier), req.Model, mustFloat(total))

	status := domain.StatusCompleted
	errMsg := ""
	if chargeErr != nil {
		status = domain.StatusFailed
		errMsg = errors.Wrap(chargeErr, "credit deduction").Error()
	}
	h.persist(ctx, domain.ChatRequestRecord{
		RequestID: requestID, UserID: user.ID, APIKeyID: user.APIKeyID, Model: req.Model, Provider: result.Provider,
		InputTokens: usage.PromptTokens, OutputTokens: usage.CompletionTokens,
		ProcessingTimeMS: elapsed.Milliseconds(), Status: status, ErrorMessage: errMsg, CreatedAt: time.Now(),
	})
	h.logSlow(ctx, requestID, elapsed)

	if chargeErr != nil {
		return domain.InternalChatResponse{}, ErrChargeFailed
	}

	resp := result.Response
	resp.CostUSD, resp.InputCostUSD, resp.OutputCostUSD = total, input, output
	resp.ProviderUsed = result.Provider
	resp.ProcessingTimeMS = elapsed.Milliseconds()
	resp.Usage = usage
	return resp, nil
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
