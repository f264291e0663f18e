// Package generalrouter implements spec.md §4.9.2: delegate model
// selection for non-code prompts to an external selector service, map
// its native model id back to a gateway model id, and fall back to a
// mode-specific default on any failure. Grounded on the teacher's
// relay/adaptor dispatch-by-keyword idiom (matching an upstream model
// name against provider prefixes) applied to this module's external
// selector contract.
package generalrouter

import (
	"context"
	"strings"
	"time"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
	"github.com/Laisky/zap"
)

// Mode is the general router's selection preference (spec.md §4.9.2).
type Mode string

const (
	ModeBalanced Mode = "balanced"
	ModeQuality  Mode = "quality"
	ModeCost     Mode = "cost"
	ModeLatency  Mode = "latency"
)

// ParseMode maps a mode suffix to a Mode, defaulting to balanced.
func ParseMode(suffix string) Mode {
	switch Mode(strings.ToLower(suffix)) {
	case ModeQuality, ModeCost, ModeLatency:
		return Mode(strings.ToLower(suffix))
	default:
		return ModeBalanced
	}
}

// preference is what the external selector's API actually accepts;
// "balanced" isn't one of its own vocabulary, so it maps to "quality"
// (spec.md §4.9.2 "Preference maps balanced → quality").
func (m Mode) preference() string {
	if m == ModeBalanced {
		return "quality"
	}
	return string(m)
}

// fallbackByMode is the mode-specific default used whenever the selector
// cannot be used or its answer doesn't resolve to a live catalog model
// (spec.md §4.9.2).
var fallbackByMode = map[Mode]string{
	ModeQuality:  "openai/gpt-4o",
	ModeCost:     "openai/gpt-4o-mini",
	ModeLatency:  "groq/llama-3.3-70b-versatile",
	ModeBalanced: "anthropic/claude-sonnet-4",
}

// Selector is the external model-selector contract (spec.md §4.9.2
// "Calls the external selector with (messages, candidate_model_ids,
// preference)").
type Selector interface {
	Select(ctx context.Context, messages []domain.Message, candidateModelIDs []string, preference string) (nativeModelID string, err error)
}

// CatalogLookup reports whether a gateway model id is currently live.
type CatalogLookup interface {
	Lookup(modelID string) (domain.ModelRecord, bool)
}

// keywordProviders maps a substring of a native model id to the gateway
// provider prefix it should be addressed through, used when the static
// mapping table has no entry (spec.md §4.9.2 "fallback-by-keyword
// heuristics").
var keywordProviders = []struct {
	substr, provider string
}{
	{"gpt", "openai"},
	{"claude", "anthropic"},
	{"gemini", "vertex"},
	{"llama", "bedrock"},
}

// Decision is the general router's verdict.
type Decision struct {
	Model          string
	Mode           Mode
	FallbackReason string // non-empty when a fallback model was used
}

// Router delegates selection to an external Selector with a static
// native-to-gateway mapping table and keyword-heuristic backstop.
type Router struct {
	selector   Selector
	catalog    CatalogLookup
	staticMap  map[string]string // native model id -> gateway model id
	candidates []string
}

// New builds a general Router. staticMap translates the selector's
// native model ids to this gateway's canonical ids; candidates is the
// fixed candidate pool offered to the selector.
func New(selector Selector, catalog CatalogLookup, staticMap map[string]string, candidates []string) *Router {
	return &Router{selector: selector, catalog: catalog, staticMap: staticMap, candidates: candidates}
}

// mapNative resolves a selector's native model id to a gateway model id
// via the static table, falling back to keyword heuristics, and as a
// last resort the empty string (caller falls through to the mode
// default).
func (r *Router) mapNative(native string) string {
	if mapped, ok := r.staticMap[native]; ok {
		return mapped
	}
	lower := strings.ToLower(native)
	for _, kw := range keywordProviders {
		if strings.Contains(lower, kw.substr) {
			return kw.provider + "/" + native
		}
	}
	return ""
}

// Route calls the external selector with exponential backoff (base 1s,
// max 10s, up to 3 attempts), maps its answer, and validates it against
// the live catalog before returning (spec.md §4.9.2).
func (r *Router) Route(ctx context.Context, messages []domain.Message, mode Mode) Decision {
	pref := mode.preference()

	native, err := r.callWithRetry(ctx, messages, pref)
	if err != nil {
		logging.Warn(ctx, "general router selector failed, using mode fallback",
			zap.String("mode", string(mode)), zap.Error(err))
		return Decision{Model: fallbackByMode[mode], Mode: mode, FallbackReason: "exception"}
	}

	mapped := r.mapNative(native)
	if mapped == "" {
		return Decision{Model: fallbackByMode[mode], Mode: mode, FallbackReason: "unmapped"}
	}
	if _, ok := r.catalog.Lookup(mapped); !ok {
		return Decision{Model: fallbackByMode[mode], Mode: mode, FallbackReason: "not_in_catalog"}
	}
	return Decision{Model: mapped, Mode: mode}
}

func (r *Router) callWithRetry(ctx context.Context, messages []domain.Message, preference string) (string, error) {
	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		native, err := r.selector.Select(ctx, messages, r.candidates, preference)
		if err == nil {
			return native, nil
		}
		lastErr = err
		if attempt == 2 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return "", lastErr
}
