// Package domain holds the gateway-neutral entities described in spec.md
// §3 — plain structs shared by every layer of the pipeline, independent of
// any one upstream provider's wire shape or the persistence layer's
// column names.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pricing carries per-single-token decimal prices. A nil field means the
// price component is unknown, not zero. decimal.Decimal is used instead
// of float64 because §8 invariant 5 requires cost_usd to be bounded
// exactly by a pre-flight reservation — float accumulation error would
// make that bound fuzzy across many requests.
type Pricing struct {
	Prompt           *decimal.Decimal `json:"prompt,omitempty"`
	Completion       *decimal.Decimal `json:"completion,omitempty"`
	Request          *decimal.Decimal `json:"request,omitempty"`
	Image            *decimal.Decimal `json:"image,omitempty"`
	WebSearch        *decimal.Decimal `json:"web_search,omitempty"`
	InternalReasoning *decimal.Decimal `json:"internal_reasoning,omitempty"`
}

// IsDynamic reports whether any populated price component is negative,
// which per §3 marks the model as dynamic-priced and excludes it from
// the catalog.
func (p Pricing) IsDynamic() bool {
	for _, d := range []*decimal.Decimal{p.Prompt, p.Completion, p.Request, p.Image, p.WebSearch, p.InternalReasoning} {
		if d != nil && d.IsNegative() {
			return true
		}
	}
	return false
}

// IsZeroPriced reports whether both prompt and completion price, when
// both known, are exactly zero — the §4.3 free-model drop condition.
func (p Pricing) IsZeroPriced() bool {
	if p.Prompt == nil || p.Completion == nil {
		return false
	}
	return p.Prompt.IsZero() && p.Completion.IsZero()
}

// Architecture describes a model's modality support.
type Architecture struct {
	Modality        string   `json:"modality"`
	InputModalities  []string `json:"input_modalities"`
	OutputModalities []string `json:"output_modalities"`
	Tokenizer       string   `json:"tokenizer"`
	InstructType    string   `json:"instruct_type"`
}

// ModelRecord is the canonical, gateway-neutral description of one model
// (spec.md §3, ModelRecord).
type ModelRecord struct {
	ID             string `json:"id"`
	Slug           string `json:"slug"`
	CanonicalSlug  string `json:"canonical_slug"`
	ProviderSlug   string `json:"provider_slug"`
	SourceGateway  string `json:"source_gateway"`

	ContextLength       int          `json:"context_length"`
	Architecture        Architecture `json:"architecture"`
	SupportedParameters []string     `json:"supported_parameters"`
	DefaultParameters   map[string]any `json:"default_parameters,omitempty"`

	Pricing Pricing `json:"pricing"`
	IsFree  bool    `json:"is_free"`

	Name            string `json:"name"`
	Description     string `json:"description"`
	ModelLogoURL    string `json:"model_logo_url,omitempty"`
	ProviderSiteURL string `json:"provider_site_url,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// HasUsablePricing reports whether the record can be used to compute a
// charge against a non-trial user (§3 ModelRecord invariant).
func (m ModelRecord) HasUsablePricing() bool {
	return m.Pricing.Prompt != nil && m.Pricing.Completion != nil && !m.Pricing.IsDynamic()
}

// CanonicalModelProvider is one upstream backing of a CanonicalModel.
type CanonicalModelProvider struct {
	ProviderSlug  string `json:"provider_slug"`
	NativeModelID string `json:"native_model_id"`
	Record        ModelRecord `json:"record"`
}

// CanonicalModel is the deduplicated identity across gateways (spec.md §3).
type CanonicalModel struct {
	CanonicalID string                   `json:"canonical_id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Providers   []CanonicalModelProvider `json:"providers"`
}

// UserTier enumerates account tiers.
type UserTier string

const (
	TierTrial UserTier = "trial"
	TierPro   UserTier = "pro"
	TierMax   UserTier = "max"
	TierAdmin UserTier = "admin"
)

// User is the gateway's account record (spec.md §3).
type User struct {
	ID                   int64
	APIKeyID             int64
	Credits              decimal.Decimal
	Tier                 UserTier
	StripeSubscriptionID string
	SubscriptionStatus   string
}

// IsAdmin reports whether the user bypasses trial checks and reports
// unlimited entitlements (§4.7).
func (u User) IsAdmin() bool { return u.Tier == TierAdmin }

// HasActiveSubscription is the defense-in-depth signal from §4.7: a user
// flagged is_trial=true but holding an active Stripe subscription must be
// routed down the paid path regardless.
func (u User) HasActiveSubscription() bool {
	return u.StripeSubscriptionID != "" && u.SubscriptionStatus == "active"
}

// TrialRecord tracks a trial user's consumption against caps (spec.md §3).
type TrialRecord struct {
	IsTrial      bool
	IsExpired    bool
	TrialEndDate time.Time

	UsedTokens   int64
	UsedRequests int64
	UsedCredits  decimal.Decimal

	MaxTokens   int64
	MaxRequests int64
	CreditCap   decimal.Decimal
}

// Invalid reports whether the trial can no longer be used (§4.7).
func (t TrialRecord) Invalid(now time.Time) bool {
	if t.IsExpired || now.After(t.TrialEndDate) {
		return true
	}
	if t.MaxTokens > 0 && t.UsedTokens >= t.MaxTokens {
		return true
	}
	if t.MaxRequests > 0 && t.UsedRequests >= t.MaxRequests {
		return true
	}
	if !t.CreditCap.IsZero() && t.UsedCredits.GreaterThanOrEqual(t.CreditCap) {
		return true
	}
	return false
}

// Plan is the per-tier entitlement record (spec.md §3).
type Plan struct {
	Tier               UserTier
	DailyRequestCap    int64
	MonthlyRequestCap  int64
	DailyTokenCap      int64
	MonthlyTokenCap    int64
	Features           []string
	IsAdmin            bool
}

// UsageRecord is a billed-usage ledger line (spec.md §3).
type UsageRecord struct {
	UserID      int64
	APIKeyID    int64
	Model       string
	TotalTokens int64
	CostUSD     decimal.Decimal
	LatencyMS   int64
	Timestamp   time.Time
}

// RequestStatus enumerates ChatRequestRecord.Status values.
type RequestStatus string

const (
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
	StatusPartial   RequestStatus = "partial"
)

// ChatRequestRecord is the persisted per-request audit row (spec.md §3).
type ChatRequestRecord struct {
	RequestID        string
	UserID           int64
	APIKeyID         int64
	Model            string
	Provider         string
	InputTokens      int64
	OutputTokens     int64
	ProcessingTimeMS int64
	Status           RequestStatus
	ErrorMessage     string
	CreatedAt        time.Time
}

// Message is one chat message in the gateway-neutral wire shape.
type Message struct {
	Role       string          `json:"role"`
	Content    any             `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

// ToolCall mirrors the OpenAI-shaped tool call envelope used across
// providers (spec.md §6.1).
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// InternalChatRequest is the gateway-neutral request shape consumed by
// every chat endpoint after protocol adaptation (spec.md §6.1).
type InternalChatRequest struct {
	Model            string         `json:"model" validate:"required"`
	Messages         []Message      `json:"messages" validate:"required,min=1"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	Tools            []any          `json:"tools,omitempty"`
	ToolChoice       any            `json:"tool_choice,omitempty"`
	ResponseFormat   any            `json:"response_format,omitempty"`
	User             string         `json:"user,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
}

// Usage mirrors upstream providers' usage envelope (spec.md §3).
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// InternalChatResponse is the gateway-neutral non-streaming response
// (spec.md §3, §6.1).
type InternalChatResponse struct {
	ID               string          `json:"id"`
	Model            string          `json:"model"`
	Message          Message         `json:"message"`
	FinishReason     string          `json:"finish_reason"`
	Usage            Usage           `json:"usage"`
	CostUSD          decimal.Decimal `json:"cost_usd"`
	InputCostUSD     decimal.Decimal `json:"input_cost_usd"`
	OutputCostUSD    decimal.Decimal `json:"output_cost_usd"`
	ProviderUsed     string          `json:"provider_used"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	ToolCalls        []ToolCall      `json:"tool_calls,omitempty"`
}

// InternalStreamChunk is one normalized streaming chunk (spec.md §4.10).
type InternalStreamChunk struct {
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Usage        *Usage  `json:"usage,omitempty"`
}
