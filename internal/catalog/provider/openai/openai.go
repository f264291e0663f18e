// Package openai wires the direct OpenAI gateway on top of openaicompat,
// since OpenAI's own API is the wire format every other adaptor in
// internal/catalog/provider/openaicompat targets (spec.md §6.3).
package openai

import (
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/openaicompat"
)

const (
	Gateway      = "openai"
	ProviderSlug = "openai"
	BaseURL      = "https://api.openai.com/v1"
)

// New builds the OpenAI provider/fetcher.
func New(apiKey string, freeAllowlist map[string]bool) *openaicompat.Provider {
	return openaicompat.New(Gateway, ProviderSlug, BaseURL, apiKey, catalog.NormalizeOptions{
		FreeAllowlist:        freeAllowlist,
		DefaultContextLength: catalog.DefaultContextLength,
	})
}
