// Package ratelimit implements the behavioral rate limiter (spec.md
// §4.2): IP- and fingerprint-scoped RPM limits with a velocity mode that
// tightens every limit when the recent error ratio spikes, backed by
// internal/cache.CounterStore (Redis when available, in-process
// fallback). Grounded on the teacher's middleware chain composition
// style (middleware/distributor.go, middleware/auth.go) applied to a
// traffic-shaping concern the teacher itself does not implement.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/cache"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/metrics"
)

// Config holds the limiter's per-class RPM caps and velocity-mode
// parameters (spec.md §4.2).
type Config struct {
	ResidentialRPM int
	DatacenterRPM  int
	FingerprintRPM int

	VelocityErrorRatio    float64
	VelocityMinSample     int
	VelocityEngageSeconds time.Duration
	VelocityMultiplier    float64
}

// LimitType classifies which cap rejected a request, surfaced in the 429
// response (spec.md §4.2 "type").
type LimitType string

const (
	TypeNone            LimitType = ""
	TypeSecurityLimit    LimitType = "security_limit"
	TypeBehavioralLimit LimitType = "behavioral_limit"
)

var datacenterUserAgents = []string{"python-requests", "aiohttp", "curl", "postman"}

// Request carries everything the limiter needs to classify one inbound
// call (spec.md §4.2 "Inputs per request").
type Request struct {
	Authenticated bool
	RemoteIP      string
	ForwardedFor  string
	UserAgent     string
	AcceptLang    string
	AcceptEnc     string
	HasProxyHdr   bool
}

// Decision is the limiter's verdict.
type Decision struct {
	Allowed   bool
	Type      LimitType
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Outcome is recorded after the handler runs, feeding velocity mode.
type Outcome struct {
	StatusCode int
	Duration   time.Duration
}

type Limiter struct {
	cfg   Config
	store cache.CounterStore

	mu              sync.Mutex
	velocityUntil   time.Time
	recentTotal     int
	recentErrors    int
	recentWindowEnd time.Time
}

// New builds a Limiter backed by store.
func New(cfg Config, store cache.CounterStore) *Limiter {
	return &Limiter{cfg: cfg, store: store}
}

func clientIP(req Request) string {
	if req.ForwardedFor != "" {
		parts := strings.Split(req.ForwardedFor, ",")
		return strings.TrimSpace(parts[0])
	}
	return req.RemoteIP
}

func isDatacenter(req Request) bool {
	if req.HasProxyHdr {
		return true
	}
	ua := strings.ToLower(req.UserAgent)
	for _, marker := range datacenterUserAgents {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// Fingerprint is a stable 16-byte-prefix hash over UA/accept-language/
// accept-encoding (spec.md §4.2), hex-encoded.
func Fingerprint(req Request) string {
	h := sha256.Sum256([]byte(req.UserAgent + "|" + req.AcceptLang + "|" + req.AcceptEnc))
	return fmt.Sprintf("%x", h[:16])
}

func minuteBucket(now time.Time) int64 { return now.Unix() / 60 }

func (l *Limiter) effectiveLimit(base int) int {
	l.mu.Lock()
	engaged := time.Now().Before(l.velocityUntil)
	l.mu.Unlock()
	if !engaged {
		return base
	}
	scaled := int(float64(base) * l.cfg.VelocityMultiplier)
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}

func (l *Limiter) check(ctx context.Context, key string, limit int, limitType LimitType, now time.Time) (Decision, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, minuteBucket(now))
	count, err := l.store.Incr(ctx, bucket, 90*time.Second)
	if err != nil {
		return Decision{Allowed: true}, err
	}

	remaining := limit - int(count)
	resetAt := now.Truncate(time.Minute).Add(time.Minute)
	if count > int64(limit) {
		metrics.Global().RecordRateLimitHit(string(limitType), key)
		return Decision{Allowed: false, Type: limitType, Limit: limit, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Type: TypeNone, Limit: limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// Check evaluates every applicable limit for one request and returns the
// first rejecting decision, or an allowing decision carrying the tightest
// limit's remaining count.
func (l *Limiter) Check(ctx context.Context, req Request) (Decision, error) {
	if req.Authenticated {
		return Decision{Allowed: true}, nil
	}

	now := time.Now()
	ip := clientIP(req)
	fp := Fingerprint(req)

	ipLimit := l.cfg.ResidentialRPM
	ipLimitType := TypeSecurityLimit
	if isDatacenter(req) {
		ipLimit = l.cfg.DatacenterRPM
	}

	ipDecision, err := l.check(ctx, "ip:"+ip, l.effectiveLimit(ipLimit), ipLimitType, now)
	if err != nil || !ipDecision.Allowed {
		return ipDecision, err
	}

	d, err := l.check(ctx, "fp:"+fp, l.effectiveLimit(l.cfg.FingerprintRPM), TypeBehavioralLimit, now)
	if err == nil && d.Allowed && ipDecision.Remaining < d.Remaining {
		return ipDecision, nil
	}
	return d, err
}

// RecordOutcome feeds the velocity-mode rolling error tracker (spec.md
// §4.2): a "system error" is a 5xx, or a 499 that took longer than 5s.
func (l *Limiter) RecordOutcome(outcome Outcome) {
	isSystemError := outcome.StatusCode >= 500 ||
		(outcome.StatusCode == 499 && outcome.Duration > 5*time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.recentWindowEnd) {
		l.recentTotal = 0
		l.recentErrors = 0
		l.recentWindowEnd = now.Add(60 * time.Second)
	}
	l.recentTotal++
	if isSystemError {
		l.recentErrors++
	}

	if l.recentTotal >= l.cfg.VelocityMinSample {
		ratio := float64(l.recentErrors) / float64(l.recentTotal)
		if ratio >= l.cfg.VelocityErrorRatio {
			l.velocityUntil = now.Add(l.cfg.VelocityEngageSeconds)
			metrics.Global().RecordVelocityModeEngaged("global")
		}
	}
}

// Headers builds the X-RateLimit-* response headers for a decision
// (spec.md §4.2).
func Headers(d Decision) http.Header {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max0(d.Remaining)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	return h
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
