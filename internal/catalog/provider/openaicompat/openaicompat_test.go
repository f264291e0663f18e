package openaicompat

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
)

func TestPricingFromCentsBuildsPointerFields(t *testing.T) {
	pricing := PricingFromCents(decimal.NewFromFloat(0.000005), decimal.NewFromFloat(0.000015))
	require.NotNil(t, pricing.Prompt)
	require.NotNil(t, pricing.Completion)
	assert.True(t, pricing.Prompt.Equal(decimal.NewFromFloat(0.000005)))
	assert.True(t, pricing.Completion.Equal(decimal.NewFromFloat(0.000015)))
}

func TestUsageFromChunkNilWhenZero(t *testing.T) {
	chunk := openai.ChatCompletionChunk{}
	assert.Nil(t, usageFromChunk(chunk))
}

func TestUsageFromChunkPopulatedWhenNonZero(t *testing.T) {
	chunk := openai.ChatCompletionChunk{}
	chunk.Usage.PromptTokens = 10
	chunk.Usage.CompletionTokens = 5
	chunk.Usage.TotalTokens = 15

	usage := usageFromChunk(chunk)
	require.NotNil(t, usage)
	assert.EqualValues(t, 10, usage.PromptTokens)
	assert.EqualValues(t, 5, usage.CompletionTokens)
	assert.EqualValues(t, 15, usage.TotalTokens)
}

func TestNewBuildsProviderWithIdentity(t *testing.T) {
	p := New("openai", "openai", "https://api.openai.com/v1", "sk-test", catalog.NormalizeOptions{})
	assert.Equal(t, "openai", p.Gateway())
	assert.Equal(t, "openai", p.Slug())
}
