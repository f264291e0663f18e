package router

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/circuitbreaker"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providerapi"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

type fakeRegistry struct {
	providersFor map[string][]string
}

func (f fakeRegistry) ProvidersFor(modelID string) []string { return f.providersFor[modelID] }
func (f fakeRegistry) NativeModelID(modelID, providerSlug string) (string, bool) {
	return modelID, true
}

type fakeProvider struct {
	slug string
	resp domain.InternalChatResponse
	err  error
}

func (f fakeProvider) Slug() string { return f.slug }
func (f fakeProvider) ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	return f.resp, f.err
}
func (f fakeProvider) StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error) {
	ch := make(chan domain.InternalStreamChunk)
	close(ch)
	return ch, f.err
}

func rateLimitedErr() error {
	return providererr.Classify(http.StatusTooManyRequests, 0, errors.New("429"))
}

func authErr() error {
	return providererr.Classify(http.StatusUnauthorized, 0, errors.New("401"))
}

func TestResolveUsesFirstHealthyProvider(t *testing.T) {
	reg := fakeRegistry{providersFor: map[string][]string{"openai/gpt-4o": {"openai"}}}
	providers := map[string]providerapi.ChatProvider{
		"openai": fakeProvider{slug: "openai", resp: domain.InternalChatResponse{ID: "resp-1"}},
	}
	r := New(reg, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()), providers, "openrouter")

	result, err := r.Resolve(context.Background(), "openai/gpt-4o", domain.InternalChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, "resp-1", result.Response.ID)
}

func TestResolveFailsOverOnTransientError(t *testing.T) {
	reg := fakeRegistry{providersFor: map[string][]string{"m": {"first", "second"}}}
	providers := map[string]providerapi.ChatProvider{
		"first":  fakeProvider{slug: "first", err: rateLimitedErr()},
		"second": fakeProvider{slug: "second", resp: domain.InternalChatResponse{ID: "ok"}},
	}
	r := New(reg, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()), providers, "openrouter")

	result, err := r.Resolve(context.Background(), "m", domain.InternalChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", result.Provider)
}

func TestResolveDoesNotRetryOnAuthFailure(t *testing.T) {
	reg := fakeRegistry{providersFor: map[string][]string{"m": {"first", "second"}}}
	providers := map[string]providerapi.ChatProvider{
		"first":  fakeProvider{slug: "first", err: authErr()},
		"second": fakeProvider{slug: "second", resp: domain.InternalChatResponse{ID: "should-not-be-used"}},
	}
	r := New(reg, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()), providers, "nonexistent-aggregator")

	_, err := r.Resolve(context.Background(), "m", domain.InternalChatRequest{})
	assert.Error(t, err, "auth failures fall straight through to the (missing) aggregator and fail")
}

func TestResolveFallsBackToDefaultAggregatorWhenRegistryEmpty(t *testing.T) {
	reg := fakeRegistry{providersFor: map[string][]string{}}
	providers := map[string]providerapi.ChatProvider{
		"openrouter": fakeProvider{slug: "openrouter", resp: domain.InternalChatResponse{ID: "from-aggregator"}},
	}
	r := New(reg, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()), providers, "openrouter")

	result, err := r.Resolve(context.Background(), "unknown/model", domain.InternalChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", result.Provider)
	assert.Equal(t, "from-aggregator", result.Response.ID)
}

func TestResolveReturnsErrNoProviderWhenNothingConfigured(t *testing.T) {
	reg := fakeRegistry{providersFor: map[string][]string{}}
	r := New(reg, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()), map[string]providerapi.ChatProvider{}, "openrouter")

	_, err := r.Resolve(context.Background(), "unknown/model", domain.InternalChatRequest{})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestResolvePrimaryPrefersRegistryCandidate(t *testing.T) {
	reg := fakeRegistry{providersFor: map[string][]string{"m": {"openai"}}}
	providers := map[string]providerapi.ChatProvider{
		"openai":     fakeProvider{slug: "openai"},
		"openrouter": fakeProvider{slug: "openrouter"},
	}
	r := New(reg, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()), providers, "openrouter")

	slug, native, _, ok := r.ResolvePrimary("m")
	assert.True(t, ok)
	assert.Equal(t, "openai", slug)
	assert.Equal(t, "m", native)
}

func TestResolvePrimaryFallsBackToAggregator(t *testing.T) {
	reg := fakeRegistry{providersFor: map[string][]string{}}
	providers := map[string]providerapi.ChatProvider{
		"openrouter": fakeProvider{slug: "openrouter"},
	}
	r := New(reg, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()), providers, "openrouter")

	slug, _, _, ok := r.ResolvePrimary("unknown")
	assert.True(t, ok)
	assert.Equal(t, "openrouter", slug)
}
