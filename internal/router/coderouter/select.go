package coderouter

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Mode is the code router's selection strategy (spec.md §4.9.1 step 4).
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModePrice   Mode = "price"
	ModeQuality Mode = "quality"
	ModeAgentic Mode = "agentic"
)

// ParseMode maps a mode suffix (as extracted by router.IsCodeRouter) to a
// Mode, defaulting to ModeAuto on an empty or unrecognized string.
func ParseMode(suffix string) Mode {
	switch Mode(strings.ToLower(suffix)) {
	case ModePrice, ModeQuality, ModeAgentic:
		return Mode(strings.ToLower(suffix))
	default:
		return ModeAuto
	}
}

func clampTier(t, minTier int) int {
	if t < minTier {
		t = minTier
	}
	if t < 1 {
		t = 1
	}
	if t > 4 {
		t = 4
	}
	return t
}

// TargetTier computes the tier to select from (spec.md §4.9.1 step 4).
func TargetTier(mode Mode, gate CategoryGate) int {
	var tier int
	switch mode {
	case ModeAgentic:
		return 1
	case ModeQuality:
		tier = gate.DefaultTier - 1
		if tier < 1 {
			tier = 1
		}
	default: // price, auto
		tier = gate.DefaultTier
	}
	return clampTier(tier, gate.MinTier)
}

// SelectModel scores every model in tier and returns the top-scoring one
// (spec.md §4.9.1 step 5): strengths match, price mode penalizes by
// (2*input + output)/3, quality mode rewards by benchmark score. Ties
// keep the first-scored (roster order) entry, matching tier ordering in
// the priors config.
func SelectModel(tier []ModelEntry, category Category, mode Mode) (ModelEntry, bool) {
	if len(tier) == 0 {
		return ModelEntry{}, false
	}

	best := tier[0]
	bestScore := modelScore(tier[0], category, mode)
	for _, m := range tier[1:] {
		s := modelScore(m, category, mode)
		if s > bestScore {
			bestScore = s
			best = m
		}
	}
	return best, true
}

func modelScore(m ModelEntry, category Category, mode Mode) float64 {
	var score float64
	for _, s := range m.Strengths {
		if s == string(category) || s == "general" {
			score += 1
		}
	}

	switch mode {
	case ModePrice:
		blended := m.InputPrice.Mul(decimal.NewFromInt(2)).Add(m.OutputPrice).Div(decimal.NewFromInt(3))
		f, _ := blended.Float64()
		if f > 0 {
			score -= f * 1_000_000 // per-token decimals are tiny; scale so the penalty is comparable to strength points
		}
	case ModeQuality:
		score += m.BenchmarkScore * 2
	}
	return score
}

// baselineTokens is the fixed prompt/completion assumption spec.md
// §4.9.1 step 6 specifies for the savings estimate.
const (
	baselinePromptTokens     = 1000
	baselineCompletionTokens = 500
)

// EstimateSavings computes the savings of selected against a configured
// baseline model's blended cost at the fixed token assumption (spec.md
// §4.9.1 step 6). Returns zero when the baseline is cheaper or equal.
func EstimateSavings(selected, baseline ModelEntry) decimal.Decimal {
	selectedCost := blendedCost(selected)
	baselineCost := blendedCost(baseline)
	savings := baselineCost.Sub(selectedCost)
	if savings.IsNegative() {
		return decimal.Zero
	}
	return savings
}

func blendedCost(m ModelEntry) decimal.Decimal {
	prompt := m.InputPrice.Mul(decimal.NewFromInt(baselinePromptTokens))
	completion := m.OutputPrice.Mul(decimal.NewFromInt(baselineCompletionTokens))
	return prompt.Add(completion)
}
