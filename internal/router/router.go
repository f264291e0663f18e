// Package router implements the multi-provider failover resolver from
// spec.md §4.8: given a canonical model id, walk its registered providers
// in order, retrying the next one only on a transient classification, and
// falling back to the default aggregator provider when the registry has
// nothing or every candidate fails. Grounded on the teacher's
// relay/controller channel-failover loop (relay/controller/text.go tries
// channels in priority order under the same circuit-breaker-before-retry
// shape) but rewritten against this module's own circuitbreaker/catalog
// packages.
package router

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/circuitbreaker"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providerapi"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

// ErrNoProvider is returned when neither the registry nor the default
// aggregator provider could serve the request.
var ErrNoProvider = errors.New("router: no provider available")

// Registry is the subset of catalog.Registry the router needs.
type Registry interface {
	ProvidersFor(modelID string) []string
	NativeModelID(modelID, providerSlug string) (string, bool)
}

// Result is the outcome of a successful resolution (spec.md §4.8 step 3).
type Result struct {
	Provider        string
	ProviderModelID string
	Response        domain.InternalChatResponse
}

// Router resolves a canonical model id to a live provider response,
// failing over across the registry's ordered provider list before
// falling back to the default aggregator.
type Router struct {
	registry Registry
	breakers *circuitbreaker.Registry
	// providers maps a provider slug to its ChatProvider; the default
	// aggregator slug must always be present.
	providers map[string]providerapi.ChatProvider
	// defaultAggregator is the historical fallback provider slug
	// (spec.md §4.8 step 5), tried with the caller's original model id.
	defaultAggregator string
}

// New builds a Router. providers must include an entry keyed by
// defaultAggregator.
func New(registry Registry, breakers *circuitbreaker.Registry, providers map[string]providerapi.ChatProvider, defaultAggregator string) *Router {
	return &Router{registry: registry, breakers: breakers, providers: providers, defaultAggregator: defaultAggregator}
}

// candidates builds the ordered provider attempt list for a model id:
// every breaker-healthy provider the registry knows about, in the
// registry's order.
func (r *Router) candidates(modelID string) []string {
	providers := r.registry.ProvidersFor(modelID)
	out := make([]string, 0, len(providers))
	now := time.Now()
	for _, p := range providers {
		if _, ok := r.providers[p]; !ok {
			continue
		}
		if skip, _ := r.breakers.ShouldSkip(p, now); skip {
			continue
		}
		out = append(out, p)
	}
	return out
}

// nativeModelID resolves a provider's native model id for a canonical
// model, falling back to the caller's model id verbatim.
func (r *Router) nativeModelID(modelID, providerSlug string) string {
	if native, ok := r.registry.NativeModelID(modelID, providerSlug); ok {
		return native
	}
	return modelID
}

// Resolve attempts every registered provider for modelID in order,
// retrying only on a transient failure classification, before falling
// back to the default aggregator with the original model id (spec.md
// §4.8). The returned error, when non-nil, is the context's error on
// cancellation, the last provider error wrapped as "router: all providers
// failed" when every attempt failed, or ErrNoProvider when no provider
// could be tried.
func (r *Router) Resolve(ctx context.Context, modelID string, req domain.InternalChatRequest) (Result, error) {
	var lastErr error

	for _, slug := range r.candidates(modelID) {
		provider := r.providers[slug]
		native := r.nativeModelID(modelID, slug)

		start := time.Now()
		resp, err := provider.ChatCompletion(ctx, native, req)
		if err == nil {
			r.breakers.RecordSuccess(slug, time.Now())
			metrics.Global().RecordProviderRequest(slug, modelID, start, true)
			return Result{Provider: slug, ProviderModelID: native, Response: resp}, nil
		}

		classified := providererr.Classify(statusCodeOf(err), 0, err)
		r.breakers.RecordFailure(slug, time.Now())
		metrics.Global().RecordProviderRequest(slug, modelID, start, false)
		metrics.Global().RecordError(string(classified.Category), "router")
		logging.Warn(ctx, "provider attempt failed",
			zap.String("provider", slug), zap.String("model", modelID),
			zap.String("category", string(classified.Category)), zap.Error(err))

		lastErr = err
		if !classified.Transient() {
			// Non-transient: spec.md §4.8 step 4 says do not retry
			// another provider for auth/4xx failures, but the caller
			// still falls through to the default aggregator below.
			break
		}
		metrics.Global().RecordFailover(slug, r.defaultAggregator, modelID)
	}

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	// Fall back to the default aggregator with the original model id
	// (spec.md §4.8 step 5).
	if agg, ok := r.providers[r.defaultAggregator]; ok {
		start := time.Now()
		resp, err := agg.ChatCompletion(ctx, modelID, req)
		if err == nil {
			r.breakers.RecordSuccess(r.defaultAggregator, time.Now())
			metrics.Global().RecordProviderRequest(r.defaultAggregator, modelID, start, true)
			return Result{Provider: r.defaultAggregator, ProviderModelID: modelID, Response: resp}, nil
		}
		r.breakers.RecordFailure(r.defaultAggregator, time.Now())
		metrics.Global().RecordProviderRequest(r.defaultAggregator, modelID, start, false)
		lastErr = err
	}

	if lastErr != nil {
		return Result{}, errors.Wrap(lastErr, "router: all providers failed")
	}
	return Result{}, ErrNoProvider
}

// ResolvePrimary picks the single best primary provider for streaming
// (spec.md §4.8 "streaming fan-out uses only the primary provider"): the
// first breaker-healthy candidate, or the default aggregator.
func (r *Router) ResolvePrimary(modelID string) (slug string, native string, provider providerapi.ChatProvider, ok bool) {
	candidates := r.candidates(modelID)
	if len(candidates) > 0 {
		slug = candidates[0]
		return slug, r.nativeModelID(modelID, slug), r.providers[slug], true
	}
	if agg, exists := r.providers[r.defaultAggregator]; exists {
		return r.defaultAggregator, modelID, agg, true
	}
	return "", "", nil, false
}

// statusCodeOf extracts an HTTP status code from a classified provider
// error when one is attached, else 0 (unknown/transport-level failure).
func statusCodeOf(err error) int {
	var classified *providererr.Classified
	if errors.As(err, &classified) {
		return classified.StatusCode
	}
	return 0
}
