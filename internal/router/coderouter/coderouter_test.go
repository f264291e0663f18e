package coderouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeRouterRouteSelectsFromDefaultPriors(t *testing.T) {
	priors := defaultPriors()
	baseline := ModelEntry{ID: "openai/gpt-4o", InputPrice: priors.Tiers[2][1].InputPrice, OutputPrice: priors.Tiers[2][1].OutputPrice}
	r := New(priors, baseline)

	decision := r.Route("help me design a scalable microservice architecture", 1, ModeAuto)
	assert.Equal(t, CategoryArchitecture, decision.Category)
	assert.Equal(t, 1, decision.Tier)
	assert.NotEmpty(t, decision.Model)
}

func TestCodeRouterRouteFallsBackWhenCategoryUngated(t *testing.T) {
	priors := &Priors{
		Gates: map[Category]CategoryGate{},
		Tiers: map[int][]ModelEntry{
			2: {{ID: "some/model", Strengths: []string{"general"}}},
		},
	}
	r := New(priors, ModelEntry{ID: "baseline/model"})

	decision := r.Route("hello", 1, ModeAuto)
	assert.Equal(t, "some/model", decision.Model)
}

func TestCodeRouterRouteUsesFallbackModelWhenNoTierMatches(t *testing.T) {
	priors := &Priors{
		Gates: map[Category]CategoryGate{CategoryDebugging: {DefaultTier: 2, MinTier: 1}},
		Tiers: map[int][]ModelEntry{},
	}
	r := New(priors, ModelEntry{ID: "baseline/model"})

	decision := r.Route("debug this panic: nil pointer dereference", 1, ModeAuto)
	assert.Equal(t, fallbackModelID, decision.Model)
}

func TestLoadPriorsEmptyPathReturnsDefault(t *testing.T) {
	p := LoadPriors("")
	require.NotNil(t, p)
	assert.Len(t, p.Tiers, 4)
}

func TestLoadPriorsUnreadablePathReturnsFallback(t *testing.T) {
	p := LoadPriors("/nonexistent/path/priors.json")
	require.NotNil(t, p)
	assert.Len(t, p.Tiers, 1)
	assert.Equal(t, fallbackModelID, p.Tiers[1][0].ID)
}
