// Package providerapi is the shared contract catalog.Fetcher
// implementations under internal/catalog/provider/* additionally satisfy
// so the router (internal/router) and relay handler (internal/relay) can
// invoke any provider without importing its concrete package (spec.md
// §6.3 "provider adaptor").
package providerapi

import (
	"context"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

// ChatProvider performs inference calls against one upstream gateway. The
// native model id is whatever catalog.CanonicalModelProvider.NativeModelID
// resolved to for this provider.
type ChatProvider interface {
	// Slug identifies this provider for circuit-breaker and metrics
	// labeling; matches ModelRecord.ProviderSlug.
	Slug() string

	ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error)

	// StreamChatCompletion returns a channel of normalized chunks. The
	// channel is closed when the upstream stream ends or ctx is canceled;
	// an error observed mid-stream is attached to the final chunk's
	// FinishReason="error" and the channel closes after it (spec.md §4.10,
	// §9 "stream adapter normalizes sync vs async iterators").
	StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error)
}
