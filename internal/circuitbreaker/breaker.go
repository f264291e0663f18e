// Package circuitbreaker implements the per-provider breaker state
// machine from spec.md §4.5, plus the independent retry-after deadline
// map from §3 ProviderState.
package circuitbreaker

import (
	"sync"
	"time"
)

// Config holds the breaker's thresholds (spec.md §4.5).
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, RecoveryTimeout: 300 * time.Second, SuccessThreshold: 1}
}

// state is the breaker's lifecycle position.
type state int

const (
	closed state = iota
	open
	halfOpen
)

// providerState mirrors spec.md §3 ProviderState plus half-open bookkeeping.
type providerState struct {
	mu sync.Mutex

	st                 state
	consecutiveFailures int
	totalFailures       int64
	totalRequests       int64
	lastFailureTime     time.Time
	lastSuccessTime     time.Time

	// halfOpenInFlight hardens the eager open->half-open transition noted
	// in spec.md §9: only one concurrent probe may run per provider.
	halfOpenInFlight bool

	retryAfterUntil time.Time
}

// Registry is the process-wide, thread-safe breaker registry — one
// providerState per provider slug.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	breakers map[string]*providerState
}

// NewRegistry builds an empty registry with the given config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*providerState)}
}

func (r *Registry) get(provider string) *providerState {
	r.mu.RLock()
	ps, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return ps
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ps, ok = r.breakers[provider]; ok {
		return ps
	}
	ps = &providerState{}
	r.breakers[provider] = ps
	return ps
}

// ShouldSkip reports whether the provider's breaker is open (and the
// recovery timeout has not elapsed) or its retry-after deadline has not
// passed — the candidate should be excluded from this round (spec.md
// §4.4 step 1, §4.5).
func (r *Registry) ShouldSkip(provider string, now time.Time) (skip bool, remaining time.Duration) {
	ps := r.get(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if now.Before(ps.retryAfterUntil) {
		return true, ps.retryAfterUntil.Sub(now)
	}

	switch ps.st {
	case closed:
		return false, 0
	case open:
		if now.Sub(ps.lastFailureTime) >= r.cfg.RecoveryTimeout {
			// Eager open->half-open: first caller past the recovery
			// timeout gets the single permitted probe.
			if !ps.halfOpenInFlight {
				ps.st = halfOpen
				ps.halfOpenInFlight = true
				return false, 0
			}
			return true, 0
		}
		return true, r.cfg.RecoveryTimeout - now.Sub(ps.lastFailureTime)
	case halfOpen:
		// A probe is already in flight; every other caller skips.
		return true, 0
	}
	return false, 0
}

// RecordSuccess closes the breaker. A success while already closed is a
// no-op on state (spec.md §8 invariant 6).
func (r *Registry) RecordSuccess(provider string, now time.Time) {
	ps := r.get(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.totalRequests++
	ps.lastSuccessTime = now
	ps.consecutiveFailures = 0
	ps.st = closed
	ps.halfOpenInFlight = false
}

// RecordFailure increments failure counters and opens the breaker once
// consecutive failures reach the threshold. A failure recorded while
// already open only updates counters — it does not re-open or reset the
// recovery window (spec.md §8 invariant 6), except the half-open probe
// itself re-opening with a fresh last_failure_time (spec.md §4.5).
func (r *Registry) RecordFailure(provider string, now time.Time) {
	ps := r.get(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.totalRequests++
	ps.totalFailures++

	switch ps.st {
	case halfOpen:
		ps.st = open
		ps.consecutiveFailures++
		ps.lastFailureTime = now
		ps.halfOpenInFlight = false
	case open:
		// already open: counters only, no re-open semantics change.
	default: // closed
		ps.consecutiveFailures++
		if ps.consecutiveFailures >= r.cfg.FailureThreshold {
			ps.st = open
			ps.lastFailureTime = now
		}
	}
}

// SetRetryAfter stamps the provider's "skip until" deadline from an
// upstream 429 Retry-After header (spec.md §3, §4.3).
func (r *Registry) SetRetryAfter(provider string, until time.Time) {
	ps := r.get(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if until.After(ps.retryAfterUntil) {
		ps.retryAfterUntil = until
	}
}

// Snapshot is a read-only view of a provider's breaker state, exposed for
// diagnostics and metrics.
type Snapshot struct {
	Provider            string
	Open                bool
	HalfOpen            bool
	ConsecutiveFailures int
	TotalFailures       int64
	TotalRequests       int64
	LastFailureTime     time.Time
	LastSuccessTime     time.Time
}

// Snapshot returns a point-in-time view of one provider's breaker.
func (r *Registry) Snapshot(provider string) Snapshot {
	ps := r.get(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		Provider:            provider,
		Open:                ps.st == open,
		HalfOpen:            ps.st == halfOpen,
		ConsecutiveFailures: ps.consecutiveFailures,
		TotalFailures:       ps.totalFailures,
		TotalRequests:       ps.totalRequests,
		LastFailureTime:     ps.lastFailureTime,
		LastSuccessTime:     ps.lastSuccessTime,
	}
}

// Providers lists every provider slug currently tracked.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		out = append(out, k)
	}
	return out
}
