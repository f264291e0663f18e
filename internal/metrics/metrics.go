// Package metrics defines the gateway's metrics-recording seam, grounded
// on the teacher's common/metrics/interface.go: a small interface plus a
// process-wide GlobalRecorder, so every subsystem records through one sink
// without importing Prometheus directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is implemented by anything that wants to observe gateway
// behavior: admission, rate limiting, catalog refreshes, circuit breaker
// transitions, provider calls, and billing.
type Recorder interface {
	RecordAdmission(accepted bool)
	RecordAdmissionQueueDepth(depth int)
	RecordAdmissionOverload()

	RecordRateLimitHit(limitType, identifier string)
	RecordVelocityModeEngaged(identifier string)

	RecordCatalogFetch(gateway string, start time.Time, success bool, modelCount int)
	RecordCircuitBreakerState(provider string, open bool)

	RecordProviderRequest(provider, model string, start time.Time, success bool)
	RecordFailover(fromProvider, toProvider, model string)

	RecordCost(tier, model string, costUSD float64)
	RecordAuthAttempt(success bool)

	RecordError(errorType, component string)
	RecordSlowRequest(tier string)
}

// NoOpRecorder discards every observation. Used before telemetry wiring
// runs and in tests.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordAdmission(accepted bool)                                      {}
func (NoOpRecorder) RecordAdmissionQueueDepth(depth int)                                 {}
func (NoOpRecorder) RecordAdmissionOverload()                                            {}
func (NoOpRecorder) RecordRateLimitHit(limitType, identifier string)                     {}
func (NoOpRecorder) RecordVelocityModeEngaged(identifier string)                         {}
func (NoOpRecorder) RecordCatalogFetch(gateway string, start time.Time, success bool, n int) {}
func (NoOpRecorder) RecordCircuitBreakerState(provider string, open bool)                {}
func (NoOpRecorder) RecordProviderRequest(provider, model string, start time.Time, success bool) {
}
func (NoOpRecorder) RecordFailover(fromProvider, toProvider, model string) {}
func (NoOpRecorder) RecordCost(tier, model string, costUSD float64)        {}
func (NoOpRecorder) RecordAuthAttempt(success bool)                       {}
func (NoOpRecorder) RecordError(errorType, component string)              {}
func (NoOpRecorder) RecordSlowRequest(tier string)                       {}

var global Recorder = NoOpRecorder{}

// Global returns the process-wide recorder.
func Global() Recorder { return global }

// SetGlobal installs the active recorder; called once from cmd/gatewayz
// after the Prometheus registry is built.
func SetGlobal(r Recorder) {
	if r != nil {
		global = r
	}
}

// PrometheusRecorder is the concrete Recorder backing production traffic,
// registered against a prometheus.Registerer (spec.md §6 "diagnostics and
// observability").
type PrometheusRecorder struct {
	admissionTotal      *prometheus.CounterVec
	admissionQueueDepth prometheus.Gauge
	admissionOverload   prometheus.Counter

	rateLimitHits       *prometheus.CounterVec
	velocityModeEngaged *prometheus.CounterVec

	catalogFetchDuration *prometheus.HistogramVec
	catalogFetchTotal    *prometheus.CounterVec
	circuitBreakerOpen   *prometheus.GaugeVec

	providerRequestDuration *prometheus.HistogramVec
	providerRequestTotal    *prometheus.CounterVec
	failoverTotal           *prometheus.CounterVec

	costTotal  *prometheus.CounterVec
	authTotal  *prometheus.CounterVec
	errorTotal *prometheus.CounterVec

	slowRequestTotal *prometheus.CounterVec
}

// NewPrometheusRecorder builds and registers every metric against reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	p := &PrometheusRecorder{
		admissionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_admission_total", Help: "admission decisions by outcome",
		}, []string{"accepted"}),
		admissionQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatewayz_admission_queue_depth", Help: "current admission wait-queue depth",
		}),
		admissionOverload: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewayz_admission_overload_total", Help: "requests rejected with server_overload",
		}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_rate_limit_hits_total", Help: "rate limit rejections by type",
		}, []string{"limit_type"}),
		velocityModeEngaged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_velocity_mode_engaged_total", Help: "velocity-mode engagements by identifier class",
		}, []string{"identifier_class"}),
		catalogFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gatewayz_catalog_fetch_duration_seconds", Help: "per-gateway catalog fetch latency",
		}, []string{"gateway", "success"}),
		catalogFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_catalog_fetch_total", Help: "per-gateway catalog fetches",
		}, []string{"gateway", "success"}),
		circuitBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatewayz_circuit_breaker_open", Help: "1 if the provider breaker is open",
		}, []string{"provider"}),
		providerRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gatewayz_provider_request_duration_seconds", Help: "provider inference call latency",
		}, []string{"provider", "model", "success"}),
		providerRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_provider_request_total", Help: "provider inference calls",
		}, []string{"provider", "model", "success"}),
		failoverTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_failover_total", Help: "router failovers between providers",
		}, []string{"from", "to", "model"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_cost_usd_total", Help: "cumulative charged cost in USD",
		}, []string{"tier", "model"}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_auth_attempts_total", Help: "API key auth attempts by outcome",
		}, []string{"success"}),
		errorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_errors_total", Help: "classified errors by type and component",
		}, []string{"error_type", "component"}),
		slowRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayz_slow_requests_total", Help: "requests exceeding the slow-request warning/error/critical thresholds",
		}, []string{"tier"}),
	}

	reg.MustRegister(
		p.admissionTotal, p.admissionQueueDepth, p.admissionOverload,
		p.rateLimitHits, p.velocityModeEngaged,
		p.catalogFetchDuration, p.catalogFetchTotal, p.circuitBreakerOpen,
		p.providerRequestDuration, p.providerRequestTotal, p.failoverTotal,
		p.costTotal, p.authTotal, p.errorTotal, p.slowRequestTotal,
	)
	return p
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (p *PrometheusRecorder) RecordAdmission(accepted bool) {
	p.admissionTotal.WithLabelValues(boolLabel(accepted)).Inc()
}

func (p *PrometheusRecorder) RecordAdmissionQueueDepth(depth int) {
	p.admissionQueueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) RecordAdmissionOverload() { p.admissionOverload.Inc() }

func (p *PrometheusRecorder) RecordRateLimitHit(limitType, identifier string) {
	p.rateLimitHits.WithLabelValues(limitType).Inc()
}

func (p *PrometheusRecorder) RecordVelocityModeEngaged(identifier string) {
	p.velocityModeEngaged.WithLabelValues(identifier).Inc()
}

func (p *PrometheusRecorder) RecordCatalogFetch(gateway string, start time.Time, success bool, modelCount int) {
	elapsed := time.Since(start).Seconds()
	p.catalogFetchDuration.WithLabelValues(gateway, boolLabel(success)).Observe(elapsed)
	p.catalogFetchTotal.WithLabelValues(gateway, boolLabel(success)).Inc()
}

func (p *PrometheusRecorder) RecordCircuitBreakerState(provider string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	p.circuitBreakerOpen.WithLabelValues(provider).Set(v)
}

func (p *PrometheusRecorder) RecordProviderRequest(provider, model string, start time.Time, success bool) {
	elapsed := time.Since(start).Seconds()
	p.providerRequestDuration.WithLabelValues(provider, model, boolLabel(success)).Observe(elapsed)
	p.providerRequestTotal.WithLabelValues(provider, model, boolLabel(success)).Inc()
}

func (p *PrometheusRecorder) RecordFailover(fromProvider, toProvider, model string) {
	p.failoverTotal.WithLabelValues(fromProvider, toProvider, model).Inc()
}

func (p *PrometheusRecorder) RecordCost(tier, model string, costUSD float64) {
	p.costTotal.WithLabelValues(tier, model).Add(costUSD)
}

func (p *PrometheusRecorder) RecordAuthAttempt(success bool) {
	p.authTotal.WithLabelValues(boolLabel(success)).Inc()
}

func (p *PrometheusRecorder) RecordError(errorType, component string) {
	p.errorTotal.WithLabelValues(errorType, component).Inc()
}

func (p *PrometheusRecorder) RecordSlowRequest(tier string) {
	p.slowRequestTotal.WithLabelValues(tier).Inc()
}
