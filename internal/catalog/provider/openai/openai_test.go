package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDelegatesToOpenAICompatWithOpenAIIdentity(t *testing.T) {
	p := New("sk-test", map[string]bool{"gpt-3.5-turbo": true})
	assert.Equal(t, "openai", p.Gateway())
	assert.Equal(t, "openai", p.Slug())
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "openai", Gateway)
	assert.Equal(t, "openai", ProviderSlug)
	assert.Equal(t, "https://api.openai.com/v1", BaseURL)
}
