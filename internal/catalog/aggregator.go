package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Laisky/zap"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/cache"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/circuitbreaker"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providererr"
)

// SnapshotStore is the fallback/audit persistence the aggregator writes
// through to (spec.md §4.3 fallback source, §4.4 pricing_sync_log).
type SnapshotStore interface {
	LatestCatalogSnapshot(ctx context.Context, sourceGateway string) ([]domain.ModelRecord, error)
	SaveCatalogSnapshot(ctx context.Context, sourceGateway string, records []domain.ModelRecord, fetchedAt time.Time) error
	LogPricingSync(ctx context.Context, sourceGateway string, success bool, modelsFetched int, errMsg string) error
}

// Config mirrors config.CatalogConfig without importing the config
// package, to keep catalog dependency-free of process wiring.
type Config struct {
	Workers         int
	FetchTimeout    time.Duration
	OverallDeadline time.Duration
	TTL             time.Duration
	StaleTTL        time.Duration
	RefreshWorkers  int
}

// Aggregator fans provider fetches out in parallel with a bounded worker
// pool, merges results, and feeds the canonical registry (spec.md §4.4).
type Aggregator struct {
	cfg      Config
	fetchers map[string]Fetcher
	breakers *circuitbreaker.Registry
	registry *Registry
	snapshot SnapshotStore

	mu     sync.RWMutex
	caches map[string]*cache.Cache[[]domain.ModelRecord]

	merged *cache.Cache[[]domain.ModelRecord]

	refreshSem *semaphore.Weighted
}

// NewAggregator wires an Aggregator from its fetchers and collaborators.
func NewAggregator(cfg Config, fetchers []Fetcher, breakers *circuitbreaker.Registry, registry *Registry, snapshot SnapshotStore) *Aggregator {
	a := &Aggregator{
		cfg:        cfg,
		fetchers:   make(map[string]Fetcher, len(fetchers)),
		breakers:   breakers,
		registry:   registry,
		snapshot:   snapshot,
		caches:     make(map[string]*cache.Cache[[]domain.ModelRecord]),
		merged:     cache.New[[]domain.ModelRecord](cfg.TTL, cfg.StaleTTL),
		refreshSem: semaphore.NewWeighted(int64(max(1, cfg.RefreshWorkers))),
	}
	for _, f := range fetchers {
		a.fetchers[f.Gateway()] = f
		a.caches[f.Gateway()] = cache.New[[]domain.ModelRecord](cfg.TTL, cfg.StaleTTL)
	}
	return a
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fetchOne runs one gateway's fetcher with a soft per-provider timeout
// (spec.md §5), records circuit-breaker outcomes, honors Retry-After, and
// falls back to the persisted snapshot on failure (spec.md §4.3).
func (a *Aggregator) fetchOne(ctx context.Context, gw string) ([]domain.ModelRecord, error) {
	f, ok := a.fetchers[gw]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for gateway %q", gw)
	}

	fctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	now := start
	records, err := f.Fetch(fctx)
	if err != nil {
		var classified *providererr.Classified
		if c, ok := err.(*providererr.Classified); ok {
			classified = c
		} else {
			classified = providererr.Classify(0, 0, err)
		}

		a.breakers.RecordFailure(gw, now)
		if classified.Category == providererr.RateLimited && classified.RetryAfter > 0 {
			a.breakers.SetRetryAfter(gw, now.Add(classified.RetryAfter))
		}
		metrics.Global().RecordCatalogFetch(gw, start, false, 0)

		logging.Warn(ctx, "catalog fetch failed",
			zap.String("gateway", gw), zap.String("category", string(classified.Category)))

		if a.snapshot != nil {
			if fallback, ferr := a.snapshot.LatestCatalogSnapshot(ctx, gw); ferr == nil && len(fallback) > 0 {
				_ = a.snapshot.LogPricingSync(ctx, gw, false, 0, classified.Error())
				return fallback, nil
			}
		}
		if a.snapshot != nil {
			_ = a.snapshot.LogPricingSync(ctx, gw, false, 0, classified.Error())
		}
		return nil, classified
	}

	a.breakers.RecordSuccess(gw, now)
	metrics.Global().RecordCatalogFetch(gw, start, true, len(records))
	if a.snapshot != nil {
		_ = a.snapshot.SaveCatalogSnapshot(ctx, gw, records, now)
		_ = a.snapshot.LogPricingSync(ctx, gw, true, len(records), "")
	}
	return records, nil
}

// refreshGateway runs fetchOne and writes the result into the gateway's
// per-provider cache (spec.md §4.6).
func (a *Aggregator) refreshGateway(ctx context.Context, gw string) {
	c := a.caches[gw]
	records, err := a.fetchOne(ctx, gw)
	now := time.Now()
	if err != nil {
		var backoff time.Duration = a.cfg.TTL
		if classified, ok := err.(*providererr.Classified); ok && classified.RetryAfter > 0 {
			backoff = classified.RetryAfter
		}
		c.SetError(err.Error(), backoff, now)
		return
	}
	c.Set(records, now)
	a.registry.RegisterCanonicalRecords(gw, records)
}

// GatewayModels returns one gateway's models honoring stale-while-
// revalidate (spec.md §4.6): fresh reads pass through; stale reads
// schedule at most one background refresh (enforced by Cache.TryStartRefresh,
// spec.md §8 invariant 7) and still return the stale data; empty reads
// refresh synchronously.
func (a *Aggregator) GatewayModels(ctx context.Context, gw string) ([]domain.ModelRecord, error) {
	c, ok := a.caches[gw]
	if !ok {
		return nil, fmt.Errorf("unknown gateway %q", gw)
	}

	now := time.Now()
	data, state := c.Get(now)
	switch state {
	case cache.Fresh, cache.ErrorBackoff:
		if len(data) > 0 {
			a.registry.RegisterCanonicalRecords(gw, data)
		}
		return data, nil
	case cache.Stale:
		a.registry.RegisterCanonicalRecords(gw, data)
		if proceed, done := c.TryStartRefresh(); proceed {
			if a.refreshSem.TryAcquire(1) {
				go func() {
					defer a.refreshSem.Release(1)
					defer done()
					bgCtx, cancel := context.WithTimeout(context.Background(), a.cfg.FetchTimeout)
					defer cancel()
					a.refreshGateway(bgCtx, gw)
				}()
			} else {
				done()
			}
		}
		return data, nil
	default: // Empty: synchronous refresh
		a.refreshGateway(ctx, gw)
		data, _ := c.Get(time.Now())
		return data, nil
	}
}

// GetAllModels runs the full §4.4 fan-out: skip providers whose breaker
// is open or whose retry-after has not elapsed, submit the rest to a
// bounded worker pool, process results in completion order (not
// submission order), and cache the merged list with its own TTL/stale-TTL.
func (a *Aggregator) GetAllModels(ctx context.Context) ([]domain.ModelRecord, error) {
	now := time.Now()
	if data, state := a.merged.Get(now); state == cache.Fresh {
		return data, nil
	} else if state == cache.Stale {
		if proceed, done := a.merged.TryStartRefresh(); proceed {
			go func() {
				defer done()
				bgCtx, cancel := context.WithTimeout(context.Background(), a.cfg.OverallDeadline)
				defer cancel()
				a.rebuild(bgCtx)
			}()
		}
		return data, nil
	}

	if err := a.rebuild(ctx); err != nil {
		return nil, err
	}
	data, _ := a.merged.Get(time.Now())
	return data, nil
}

func (a *Aggregator) rebuild(ctx context.Context) error {
	proceed, done := a.registry.BeginRebuild()
	if !proceed {
		// Another rebuild is already running; serve whatever is cached.
		return nil
	}
	defer done()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.OverallDeadline)
	defer cancel()

	type result struct {
		gw      string
		records []domain.ModelRecord
		err     error
	}

	var candidates []string
	for gw := range a.fetchers {
		if skip, remaining := a.breakers.ShouldSkip(gw, time.Now()); skip {
			logging.Info(ctx, "skipping provider for catalog rebuild",
				zap.String("gateway", gw), zap.Duration("remaining", remaining))
			continue
		}
		candidates = append(candidates, gw)
	}

	sem := semaphore.NewWeighted(int64(max(1, a.cfg.Workers)))
	results := make(chan result, len(candidates))
	var wg sync.WaitGroup

	for _, gw := range candidates {
		gw := gw
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- result{gw: gw, err: err}
				return
			}
			defer sem.Release(1)
			records, err := a.fetchOne(ctx, gw)
			results <- result{gw: gw, records: records, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var merged []domain.ModelRecord
	for res := range results {
		if res.err != nil {
			metrics.Global().RecordError(string(classifyErr(res.err)), "catalog")
			continue
		}
		a.registry.RegisterCanonicalRecords(res.gw, res.records)
		merged = append(merged, res.records...)
		c := a.caches[res.gw]
		c.Set(res.records, time.Now())
	}

	a.merged.Set(merged, time.Now())
	return nil
}

func classifyErr(err error) string {
	if c, ok := err.(*providererr.Classified); ok {
		return string(c.Category)
	}
	return "unknown"
}
