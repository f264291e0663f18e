package coderouter

import (
	"context"
	"encoding/json"
	"os"

	"github.com/shopspring/decimal"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
	"github.com/Laisky/zap"
)

// ModelEntry is one candidate model within a tier.
type ModelEntry struct {
	ID             string          `json:"id"`
	Strengths      []string        `json:"strengths"`
	InputPrice     decimal.Decimal `json:"input_price"`
	OutputPrice    decimal.Decimal `json:"output_price"`
	BenchmarkScore float64         `json:"benchmark_score"`
}

// CategoryGate is a category's quality floor: the lowest tier (1 = best)
// the category is ever allowed to drop to (spec.md §4.9.1 step 4 "clamp
// to min_tier from the category's quality gate").
type CategoryGate struct {
	DefaultTier int `json:"default_tier"`
	MinTier     int `json:"min_tier"`
}

// Priors is the loaded quality-priors configuration: one quality gate
// per category, and a model roster per tier.
type Priors struct {
	Gates map[Category]CategoryGate `json:"gates"`
	Tiers map[int][]ModelEntry      `json:"tiers"`
}

// fallbackModelID is the single entry used when the quality-priors file
// cannot be loaded — spec.md §4.9.1 "never fail open to an unknown-cost
// model".
const fallbackModelID = "openai/gpt-4o-mini"

// fallbackPriors is the minimal configuration spec.md §4.9.1 requires
// when the external priors file is unavailable: one tier, one model,
// every category gated to it.
func fallbackPriors() *Priors {
	gate := CategoryGate{DefaultTier: 1, MinTier: 1}
	return &Priors{
		Gates: map[Category]CategoryGate{
			CategorySimpleCode: gate, CategoryCodeExplanation: gate, CategoryCodeGeneration: gate,
			CategoryDebugging: gate, CategoryRefactoring: gate, CategoryArchitecture: gate, CategoryAgentic: gate,
		},
		Tiers: map[int][]ModelEntry{
			1: {{
				ID:          fallbackModelID,
				Strengths:   []string{"general"},
				InputPrice:  decimal.NewFromFloat(0.00000015),
				OutputPrice: decimal.NewFromFloat(0.0000006),
			}},
		},
	}
}

// defaultPriors is the built-in quality-priors roster used when no
// override file is configured; a superset of the fallback spanning all
// four tiers, grounded on typical published per-token prices for these
// model families at time of writing.
func defaultPriors() *Priors {
	return &Priors{
		Gates: map[Category]CategoryGate{
			CategorySimpleCode:      {DefaultTier: 4, MinTier: 3},
			CategoryCodeExplanation: {DefaultTier: 3, MinTier: 2},
			CategoryCodeGeneration:  {DefaultTier: 2, MinTier: 2},
			CategoryDebugging:       {DefaultTier: 2, MinTier: 1},
			CategoryRefactoring:     {DefaultTier: 2, MinTier: 1},
			CategoryArchitecture:    {DefaultTier: 1, MinTier: 1},
			CategoryAgentic:         {DefaultTier: 1, MinTier: 1},
		},
		Tiers: map[int][]ModelEntry{
			1: {
				{ID: "anthropic/claude-opus-4", Strengths: []string{"architecture", "agentic", "reasoning"}, InputPrice: decimal.NewFromFloat(0.000015), OutputPrice: decimal.NewFromFloat(0.000075), BenchmarkScore: 0.92},
				{ID: "openai/gpt-4.1", Strengths: []string{"architecture", "debugging", "reasoning"}, InputPrice: decimal.NewFromFloat(0.000002), OutputPrice: decimal.NewFromFloat(0.000008), BenchmarkScore: 0.89},
			},
			2: {
				{ID: "anthropic/claude-sonnet-4", Strengths: []string{"code_generation", "debugging", "refactoring"}, InputPrice: decimal.NewFromFloat(0.000003), OutputPrice: decimal.NewFromFloat(0.000015), BenchmarkScore: 0.85},
				{ID: "openai/gpt-4o", Strengths: []string{"code_generation", "refactoring"}, InputPrice: decimal.NewFromFloat(0.0000025), OutputPrice: decimal.NewFromFloat(0.00001), BenchmarkScore: 0.83},
			},
			3: {
				{ID: "anthropic/claude-haiku-4", Strengths: []string{"code_explanation", "simple_code"}, InputPrice: decimal.NewFromFloat(0.0000008), OutputPrice: decimal.NewFromFloat(0.000004), BenchmarkScore: 0.74},
				{ID: "openai/gpt-4o-mini", Strengths: []string{"code_explanation", "simple_code"}, InputPrice: decimal.NewFromFloat(0.00000015), OutputPrice: decimal.NewFromFloat(0.0000006), BenchmarkScore: 0.71},
			},
			4: {
				{ID: fallbackModelID, Strengths: []string{"simple_code"}, InputPrice: decimal.NewFromFloat(0.00000015), OutputPrice: decimal.NewFromFloat(0.0000006), BenchmarkScore: 0.65},
			},
		},
	}
}

// LoadPriors loads the quality-priors configuration from path, falling
// back to the minimal single-model configuration on any read/parse error
// (spec.md §4.9.1 "Fallback"). An empty path loads the built-in roster.
func LoadPriors(path string) *Priors {
	if path == "" {
		return defaultPriors()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logging.Warn(context.Background(), "quality priors file unreadable, using fallback model", zap.Error(err))
		return fallbackPriors()
	}
	var p Priors
	if err := json.Unmarshal(raw, &p); err != nil {
		logging.Warn(context.Background(), "quality priors file malformed, using fallback model", zap.Error(err))
		return fallbackPriors()
	}
	if len(p.Tiers) == 0 {
		return fallbackPriors()
	}
	return &p
}
