// Package catalog implements the model catalog subsystem: per-provider
// fetchers, the shared normalization rules (spec.md §4.3), the canonical
// registry (§3 CanonicalModel), and the bounded-fanout aggregator (§4.4).
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

// DefaultContextLength is used when a provider omits context length and
// has no documented default of its own (spec.md §4.3).
const DefaultContextLength = 4096

// NormalizeOptions carries the per-gateway knobs the shared rules need.
type NormalizeOptions struct {
	// FreeAllowlist holds model ids that are legitimately free (e.g.
	// OpenRouter ids ending in ":free") and must be kept, marked
	// is_free=true, instead of dropped as a zero-priced model.
	FreeAllowlist map[string]bool
	// DefaultContextLength overrides DefaultContextLength for gateways
	// with their own documented default.
	DefaultContextLength int
}

// deriveProviderSlug extracts the provider from a model id prefix
// (e.g. "openai/gpt-4o" -> "openai"), falling back to the source gateway
// when the id carries no recognizable prefix (spec.md §4.3).
func deriveProviderSlug(modelID, sourceGateway string) string {
	if i := strings.Index(modelID, "/"); i > 0 {
		return modelID[:i]
	}
	return sourceGateway
}

// Normalize applies the rules common to every fetcher (spec.md §4.3) to a
// provisionally-built ModelRecord, and reports whether the record should
// be kept.
func Normalize(rec domain.ModelRecord, opts NormalizeOptions) (domain.ModelRecord, bool) {
	if rec.ProviderSlug == "" {
		rec.ProviderSlug = deriveProviderSlug(rec.ID, rec.SourceGateway)
	}

	if rec.Pricing.IsDynamic() {
		return domain.ModelRecord{}, false
	}

	if rec.Pricing.IsZeroPriced() {
		if opts.FreeAllowlist != nil && opts.FreeAllowlist[rec.ID] {
			rec.IsFree = true
		} else {
			return domain.ModelRecord{}, false
		}
	}

	if rec.ContextLength == 0 {
		if opts.DefaultContextLength > 0 {
			rec.ContextLength = opts.DefaultContextLength
		} else {
			rec.ContextLength = DefaultContextLength
		}
	}

	return rec, true
}

// ConvertPerThousand converts a native per-1K-token price to the
// per-single-token decimal every fetcher must converge on (spec.md §4.3,
// §9).
func ConvertPerThousand(v decimal.Decimal) decimal.Decimal {
	return v.Div(decimal.NewFromInt(1000))
}

// ConvertPerMillion converts a native per-1M-token price to per-token.
func ConvertPerMillion(v decimal.Decimal) decimal.Decimal {
	return v.Div(decimal.NewFromInt(1_000_000))
}

// ConvertCentsPerToken converts a cents-per-token price to USD-per-token.
func ConvertCentsPerToken(v decimal.Decimal) decimal.Decimal {
	return v.Div(decimal.NewFromInt(100))
}

// ApplyOverlay overrides prompt/completion pricing from the manual
// overlay, leaving other fields untouched (spec.md §4.3 "each record is
// optionally enriched by a manual-pricing overlay").
func ApplyOverlay(rec domain.ModelRecord, prompt, completion *decimal.Decimal) domain.ModelRecord {
	if prompt != nil {
		rec.Pricing.Prompt = prompt
	}
	if completion != nil {
		rec.Pricing.Completion = completion
	}
	return rec
}
