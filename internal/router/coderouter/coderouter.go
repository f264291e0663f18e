package coderouter

import (
	"github.com/shopspring/decimal"
)

// Decision is the code router's full verdict for one prompt (spec.md
// §4.9.1), carried through to the diagnostics test endpoint (§6.2) and
// the inference handler.
type Decision struct {
	Category    Category
	Confidence  float64
	Mode        Mode
	Tier        int
	Model       string
	SavingsUSD  decimal.Decimal
}

// CodeRouter selects a concrete model for code-shaped prompts, balancing
// cost and quality per spec.md §4.9.1.
type CodeRouter struct {
	priors   *Priors
	baseline ModelEntry
}

// New builds a CodeRouter from a loaded Priors config. baseline is the
// model the savings estimate (step 6) compares against — typically the
// gateway's historical default model before routing existed.
func New(priors *Priors, baseline ModelEntry) *CodeRouter {
	return &CodeRouter{priors: priors, baseline: baseline}
}

// Route classifies prompt and returns the selected model and its
// metadata. conversationTurns feeds the "long conversation" context
// adjustment (spec.md §4.9.1 step 3).
func (r *CodeRouter) Route(prompt string, conversationTurns int, mode Mode) Decision {
	cls := Classify(prompt, conversationTurns)
	gate, ok := r.priors.Gates[cls.Category]
	if !ok {
		gate = CategoryGate{DefaultTier: 2, MinTier: 1}
	}

	tier := TargetTier(mode, gate)
	entry, found := SelectModel(r.priors.Tiers[tier], cls.Category, mode)
	if !found {
		// Walk down to tier 1's roster before giving up entirely — never
		// fail open to an unknown-cost model (spec.md §4.9.1 Fallback).
		for t := 1; t <= 4 && !found; t++ {
			entry, found = SelectModel(r.priors.Tiers[t], cls.Category, mode)
		}
	}
	if !found {
		entry = ModelEntry{ID: fallbackModelID}
	}

	return Decision{
		Category:   cls.Category,
		Confidence: cls.Confidence,
		Mode:       mode,
		Tier:       tier,
		Model:      entry.ID,
		SavingsUSD: EstimateSavings(entry, r.baseline),
	}
}
