// Package pricing is the external interface spec.md §2 describes: "returns
// per-token input/output prices for a model id; backed by a separate
// store." It layers the manual pricing overlay (SPEC_FULL.md) over the
// catalog's ModelRecord pricing, and provides the decimal cost-calculus
// used by the pre-flight check and charging paths (spec.md §4.7, §8).
package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

// OverlayStore is the subset of store.Store the pricing service needs,
// kept as an interface so the service can be tested without a database.
type OverlayStore interface {
	GetPricingOverlay(ctx context.Context, modelID string) (prompt, completion *decimal.Decimal, ok bool, err error)
}

// CatalogLookup resolves a model id to its catalog ModelRecord.
type CatalogLookup interface {
	Lookup(modelID string) (domain.ModelRecord, bool)
}

// Service resolves effective per-token pricing and computes costs.
type Service struct {
	overlay OverlayStore
	catalog CatalogLookup
	// FlatFallbackRate is charged per token when no pricing can be
	// resolved for a trial user (spec.md §4.7 "else a flat fallback rate
	// per token").
	FlatFallbackRate decimal.Decimal
}

// New builds a pricing Service.
func New(overlay OverlayStore, catalog CatalogLookup, flatFallbackRate decimal.Decimal) *Service {
	return &Service{overlay: overlay, catalog: catalog, FlatFallbackRate: flatFallbackRate}
}

// Resolved is the effective per-token pricing for one model, after the
// manual overlay has been applied.
type Resolved struct {
	ModelID    string
	Prompt     decimal.Decimal
	Completion decimal.Decimal
	Found      bool
}

// Resolve returns the effective prompt/completion per-token price for a
// model, applying any manual overlay override (spec.md §4.3).
func (s *Service) Resolve(ctx context.Context, modelID string) (Resolved, error) {
	rec, ok := s.catalog.Lookup(modelID)
	if !ok {
		return Resolved{ModelID: modelID}, nil
	}

	res := Resolved{ModelID: modelID, Found: rec.HasUsablePricing()}
	if rec.Pricing.Prompt != nil {
		res.Prompt = *rec.Pricing.Prompt
	}
	if rec.Pricing.Completion != nil {
		res.Completion = *rec.Pricing.Completion
	}

	if s.overlay != nil {
		prompt, completion, ok, err := s.overlay.GetPricingOverlay(ctx, modelID)
		if err != nil {
			return Resolved{}, err
		}
		if ok {
			if prompt != nil {
				res.Prompt = *prompt
				res.Found = true
			}
			if completion != nil {
				res.Completion = *completion
				res.Found = true
			}
		}
	}

	return res, nil
}

// MaxCost computes the pre-flight reservation from spec.md §4.7: prompt
// tokens at the resolved prompt price, plus the full requested max_tokens
// at the resolved completion price — the conservative upper bound used
// to gate non-trial requests before any provider call is made.
func MaxCost(promptTokens int64, maxOutputTokens int64, r Resolved) decimal.Decimal {
	in := r.Prompt.Mul(decimal.NewFromInt(promptTokens))
	out := r.Completion.Mul(decimal.NewFromInt(maxOutputTokens))
	return in.Add(out)
}

// Cost computes the exact charge for realized usage (spec.md §8 S1).
func Cost(usage domain.Usage, r Resolved) (total, input, output decimal.Decimal) {
	input = r.Prompt.Mul(decimal.NewFromInt(usage.PromptTokens))
	output = r.Completion.Mul(decimal.NewFromInt(usage.CompletionTokens))
	total = input.Add(output)
	return total, input, output
}

// FlatCost computes a trial user's cost via the flat fallback rate when
// no pricing could be resolved for the model (spec.md §4.7 Charging).
func (s *Service) FlatCost(usage domain.Usage) decimal.Decimal {
	tokens := decimal.NewFromInt(usage.TotalTokens)
	return tokens.Mul(s.FlatFallbackRate)
}
