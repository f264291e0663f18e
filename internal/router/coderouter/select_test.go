package coderouter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseModeRecognizesKnownSuffixes(t *testing.T) {
	assert.Equal(t, ModePrice, ParseMode("price"))
	assert.Equal(t, ModeQuality, ParseMode("QUALITY"))
	assert.Equal(t, ModeAgentic, ParseMode("agentic"))
	assert.Equal(t, ModeAuto, ParseMode(""))
	assert.Equal(t, ModeAuto, ParseMode("bogus"))
}

func TestTargetTierAgenticAlwaysTopTier(t *testing.T) {
	gate := CategoryGate{DefaultTier: 3, MinTier: 2}
	assert.Equal(t, 1, TargetTier(ModeAgentic, gate))
}

func TestTargetTierQualityMovesUpOneTier(t *testing.T) {
	gate := CategoryGate{DefaultTier: 3, MinTier: 1}
	assert.Equal(t, 2, TargetTier(ModeQuality, gate))
}

func TestTargetTierClampsToMinTier(t *testing.T) {
	gate := CategoryGate{DefaultTier: 4, MinTier: 2}
	assert.Equal(t, 2, TargetTier(ModePrice, gate))
}

func TestSelectModelEmptyTierFails(t *testing.T) {
	_, ok := SelectModel(nil, CategoryDebugging, ModeAuto)
	assert.False(t, ok)
}

func TestSelectModelPriceModePrefersCheaper(t *testing.T) {
	tier := []ModelEntry{
		{ID: "expensive", Strengths: []string{"debugging"}, InputPrice: decimal.NewFromFloat(0.00001), OutputPrice: decimal.NewFromFloat(0.00005)},
		{ID: "cheap", Strengths: []string{"debugging"}, InputPrice: decimal.NewFromFloat(0.0000001), OutputPrice: decimal.NewFromFloat(0.0000005)},
	}
	got, ok := SelectModel(tier, CategoryDebugging, ModePrice)
	assert.True(t, ok)
	assert.Equal(t, "cheap", got.ID)
}

func TestSelectModelQualityModePrefersHigherBenchmark(t *testing.T) {
	tier := []ModelEntry{
		{ID: "weaker", Strengths: []string{"architecture"}, BenchmarkScore: 0.5},
		{ID: "stronger", Strengths: []string{"architecture"}, BenchmarkScore: 0.9},
	}
	got, ok := SelectModel(tier, CategoryArchitecture, ModeQuality)
	assert.True(t, ok)
	assert.Equal(t, "stronger", got.ID)
}

func TestEstimateSavingsZeroWhenBaselineCheaper(t *testing.T) {
	selected := ModelEntry{InputPrice: decimal.NewFromFloat(0.00001), OutputPrice: decimal.NewFromFloat(0.00002)}
	baseline := ModelEntry{InputPrice: decimal.NewFromFloat(0.000001), OutputPrice: decimal.NewFromFloat(0.000002)}
	assert.True(t, EstimateSavings(selected, baseline).IsZero())
}

func TestEstimateSavingsPositiveWhenSelectedCheaper(t *testing.T) {
	selected := ModelEntry{InputPrice: decimal.NewFromFloat(0.0000001), OutputPrice: decimal.NewFromFloat(0.0000002)}
	baseline := ModelEntry{InputPrice: decimal.NewFromFloat(0.00001), OutputPrice: decimal.NewFromFloat(0.00002)}
	savings := EstimateSavings(selected, baseline)
	assert.True(t, savings.IsPositive())
}
