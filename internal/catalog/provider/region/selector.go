// Package region implements the Bedrock-style region failover state
// machine: try the caller's explicit region, then the last region that
// worked, then the configured default order — skipping any region with no
// key and any region still inside a quota backoff window. Auth errors move
// on to the next region without a backoff; quota errors cache one
// (SPEC_FULL.md supplemented feature, grounded on spec.md §4.8's general
// provider-failover shape applied within a single provider's regions).
package region

import (
	"sync"
	"time"
)

type Selector struct {
	mu           sync.Mutex
	defaultOrder []string
	keys         map[string]string
	lastWorking  string
	backoffUntil map[string]time.Time
}

// NewSelector builds a region Selector. keys maps region -> credential; a
// region absent from keys (or mapped to "") is never a candidate.
func NewSelector(defaultOrder []string, keys map[string]string) *Selector {
	return &Selector{
		defaultOrder: defaultOrder,
		keys:         keys,
		backoffUntil: make(map[string]time.Time),
	}
}

func (s *Selector) usable(now time.Time, region string) bool {
	if s.keys[region] == "" {
		return false
	}
	if until, ok := s.backoffUntil[region]; ok && now.Before(until) {
		return false
	}
	return true
}

// Candidates returns the ordered region list to try: explicit region
// first (if usable), then the last region that succeeded, then the
// default order, each deduplicated and filtered to usable regions.
func (s *Selector) Candidates(explicit string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	seen := make(map[string]bool)
	var out []string
	add := func(r string) {
		if r == "" || seen[r] || !s.usable(now, r) {
			return
		}
		seen[r] = true
		out = append(out, r)
	}

	add(explicit)
	add(s.lastWorking)
	for _, r := range s.defaultOrder {
		add(r)
	}
	return out
}

// Key returns the credential configured for a region.
func (s *Selector) Key(region string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[region]
}

// RecordSuccess marks region as the new last-working region.
func (s *Selector) RecordSuccess(region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWorking = region
}

// RecordAuthFailure does not cache a backoff — an auth failure is a
// configuration problem, not transient load, so the next call should
// retry this region again rather than skip it for a fixed window.
func (s *Selector) RecordAuthFailure(region string) {}

// RecordQuotaFailure caches a backoff window so subsequent calls skip this
// region until it elapses.
func (s *Selector) RecordQuotaFailure(region string, backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoffUntil[region] = time.Now().Add(backoff)
}
