package catalog

import (
	"sync"

	"github.com/jinzhu/copier"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

// Registry is the process-wide canonical-model registry (spec.md §3
// CanonicalModel, §4.4). It is reset at the start of each full catalog
// rebuild and repopulated by register_canonical_records calls as each
// fetcher returns.
type Registry struct {
	mu sync.RWMutex

	// building guards re-entrance: enrichers invoked while a rebuild is
	// in progress (e.g. cross-reference pricing lookups) must short
	// circuit instead of recursively triggering another rebuild
	// (spec.md §5, §9).
	building bool

	canonical map[string]*domain.CanonicalModel
	byModelID map[string]domain.ModelRecord // flat index: "source_gateway:model_id" -> record
	byID      map[string]domain.ModelRecord // secondary index: model_id -> most recently registered record
}

// NewRegistry builds an empty canonical registry.
func NewRegistry() *Registry {
	return &Registry{
		canonical: make(map[string]*domain.CanonicalModel),
		byModelID: make(map[string]domain.ModelRecord),
		byID:      make(map[string]domain.ModelRecord),
	}
}

// BeginRebuild resets the canonical registry for a new full fetch round
// and reports whether the caller won the right to run it (spec.md §4.4,
// §5 "building catalog flag").
func (r *Registry) BeginRebuild() (proceed bool, done func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.building {
		return false, func() {}
	}
	r.building = true
	r.canonical = make(map[string]*domain.CanonicalModel)
	r.byModelID = make(map[string]domain.ModelRecord)
	r.byID = make(map[string]domain.ModelRecord)
	return true, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.building = false
	}
}

// IsBuilding reports whether a rebuild is currently in progress, letting
// enrichers short-circuit rather than re-entering (spec.md §5).
func (r *Registry) IsBuilding() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.building
}

func flatKey(sourceGateway, modelID string) string { return sourceGateway + ":" + modelID }

// canonicalID derives a dedup identity for a model. Grounded on the
// teacher's openrouter/openai adaptors treating "<provider>/<model>" as
// the canonical slug; this module strips the source-gateway prefix so
// the same upstream model fetched through two different gateways
// collapses to one canonical entry.
func canonicalID(rec domain.ModelRecord) string {
	if rec.CanonicalSlug != "" {
		return rec.CanonicalSlug
	}
	if rec.ProviderSlug != "" {
		return rec.ProviderSlug + "/" + trimProviderPrefix(rec.ID, rec.ProviderSlug)
	}
	return rec.ID
}

func trimProviderPrefix(id, provider string) string {
	prefix := provider + "/"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		return id[len(prefix):]
	}
	return id
}

// RegisterCanonicalRecords folds one gateway's fetch results into the
// canonical registry (spec.md §4.4 "register_canonical_records").
func (r *Registry) RegisterCanonicalRecords(sourceGateway string, records []domain.ModelRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		var clone domain.ModelRecord
		_ = copier.Copy(&clone, &rec)

		r.byModelID[flatKey(sourceGateway, rec.ID)] = clone
		r.byID[rec.ID] = clone

		cid := canonicalID(clone)
		cm, ok := r.canonical[cid]
		if !ok {
			cm = &domain.CanonicalModel{CanonicalID: cid, Name: clone.Name, Description: clone.Description}
			r.canonical[cid] = cm
		}

		replaced := false
		for i, p := range cm.Providers {
			if p.ProviderSlug == clone.ProviderSlug {
				cm.Providers[i] = domain.CanonicalModelProvider{
					ProviderSlug: clone.ProviderSlug, NativeModelID: clone.ID, Record: clone,
				}
				replaced = true
				break
			}
		}
		if !replaced {
			cm.Providers = append(cm.Providers, domain.CanonicalModelProvider{
				ProviderSlug: clone.ProviderSlug, NativeModelID: clone.ID, Record: clone,
			})
		}
	}
}

// Lookup resolves a model id (as requested by a client) to its most
// recently registered ModelRecord, checking the flat per-id index first
// and falling back to the canonical registry's first provider. Implements
// the pricing.CatalogLookup interface.
func (r *Registry) Lookup(modelID string) (domain.ModelRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.byID[modelID]; ok {
		return rec, true
	}
	if cm, ok := r.canonical[modelID]; ok && len(cm.Providers) > 0 {
		return cm.Providers[0].Record, true
	}
	return domain.ModelRecord{}, false
}

// AllModels returns a flattened snapshot of every registered ModelRecord,
// deduplicated by (source_gateway, id) — the §4.4 merged list.
func (r *Registry) AllModels() []domain.ModelRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ModelRecord, 0, len(r.byModelID))
	for _, rec := range r.byModelID {
		out = append(out, rec)
	}
	return out
}

// CanonicalModels returns every canonical model currently registered.
// Invariant (spec.md §3): a canonical id is only ever exposed here once
// at least one provider has been registered for it, which holds
// structurally since entries are created lazily on first registration.
func (r *Registry) CanonicalModels() []domain.CanonicalModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CanonicalModel, 0, len(r.canonical))
	for _, cm := range r.canonical {
		out = append(out, *cm)
	}
	return out
}

// ProvidersFor returns the ordered provider slugs registered for a
// canonical model id, used by the router to build its failover candidate
// list (spec.md §4.8). A raw provider-native id that differs from its
// canonical id returns nil.
func (r *Registry) ProvidersFor(modelID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, ok := r.canonical[modelID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cm.Providers))
	for _, p := range cm.Providers {
		out = append(out, p.ProviderSlug)
	}
	return out
}

// NativeModelID resolves the provider-specific model id a given provider
// backs modelID with, used by the router to address the right upstream
// model per failover attempt (spec.md §4.8).
func (r *Registry) NativeModelID(modelID, providerSlug string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, ok := r.canonical[modelID]
	if !ok {
		return "", false
	}
	for _, p := range cm.Providers {
		if p.ProviderSlug == providerSlug {
			return p.NativeModelID, true
		}
	}
	return "", false
}
