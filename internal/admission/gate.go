// Package admission implements the global concurrency gate (spec.md
// §4.1): a fixed number of in-flight request slots plus a bounded wait
// queue, ahead of everything else in the pipeline (auth, rate limiting,
// routing). Grounded on the teacher's middleware chain shape
// (middleware/distributor.go composes one gin.HandlerFunc per concern);
// the semaphore itself uses golang.org/x/sync/semaphore the way the
// catalog aggregator's worker pool does, for the same "bounded
// concurrency without a hand-rolled counter" reason.
package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/metrics"
)

// ErrOverload is returned when the wait queue is full or the caller timed
// out waiting for a slot — both map to the server_overload error taxonomy
// entry (spec.md §7).
var ErrOverload = errors.New("admission: server overloaded")

// Config holds the gate's limit/queue shape (spec.md §4.1).
type Config struct {
	Limit        int
	QueueSize    int
	QueueTimeout time.Duration
}

// Gate is the process-wide admission control.
type Gate struct {
	cfg      Config
	sem      *semaphore.Weighted
	waiting  atomic.Int64
	inFlight atomic.Int64
}

// New builds a Gate from cfg.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg, sem: semaphore.NewWeighted(int64(cfg.Limit))}
}

// Acquire reserves one in-flight slot, waiting in the bounded queue if
// none is immediately free. The returned release func must be called
// exactly once, regardless of what happens afterward, to guarantee the
// slot is always returned (spec.md §8 "admission slot is always
// released"). On ErrOverload, release is nil.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if g.sem.TryAcquire(1) {
		metrics.Global().RecordAdmission(true)
		g.inFlight.Add(1)
		return g.releaseFunc(), nil
	}

	if g.waiting.Load() >= int64(g.cfg.QueueSize) {
		metrics.Global().RecordAdmissionOverload()
		metrics.Global().RecordAdmission(false)
		return nil, ErrOverload
	}

	g.waiting.Add(1)
	metrics.Global().RecordAdmissionQueueDepth(int(g.waiting.Load()))
	defer func() {
		g.waiting.Add(-1)
		metrics.Global().RecordAdmissionQueueDepth(int(g.waiting.Load()))
	}()

	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.QueueTimeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		metrics.Global().RecordAdmissionOverload()
		metrics.Global().RecordAdmission(false)
		return nil, ErrOverload
	}

	metrics.Global().RecordAdmission(true)
	g.inFlight.Add(1)
	return g.releaseFunc(), nil
}

// releaseFunc builds the once-only release closure for a newly acquired
// slot; shared by both the immediate and the queued acquisition paths.
func (g *Gate) releaseFunc() func() {
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		}
	}
}

// InFlight reports the current number of occupied slots, for diagnostics
// (spec.md §6 "GET /api/diagnostics/concurrency").
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Snapshot is the diagnostics view of the gate's current occupancy.
type Snapshot struct {
	Limit     int
	QueueSize int
	Queued    int
}

// Snapshot returns the gate's current limit/queue-depth view.
func (g *Gate) Snapshot() Snapshot {
	return Snapshot{Limit: g.cfg.Limit, QueueSize: g.cfg.QueueSize, Queued: int(g.waiting.Load())}
}
