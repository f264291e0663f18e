package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestGlobalDefaultsToNoOp(t *testing.T) {
	assert.IsType(t, NoOpRecorder{}, Global())
	// Must not panic even with zero values.
	Global().RecordAdmission(true)
	Global().RecordCatalogFetch("openrouter", time.Now(), true, 5)
}

func TestSetGlobalInstallsRecorderAndIgnoresNil(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	SetGlobal(rec)
	assert.Same(t, rec, Global())

	SetGlobal(nil)
	assert.Same(t, rec, Global())
}

func TestPrometheusRecorderRecordsAdmissionOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.RecordAdmission(true)
	rec.RecordAdmission(false)
	rec.RecordAdmission(true)

	assert.Equal(t, float64(2), counterValue(t, rec.admissionTotal.WithLabelValues("true")))
	assert.Equal(t, float64(1), counterValue(t, rec.admissionTotal.WithLabelValues("false")))
}

func TestPrometheusRecorderRecordsCatalogFetchByGatewayAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.RecordCatalogFetch("openrouter", time.Now().Add(-10*time.Millisecond), true, 42)
	assert.Equal(t, float64(1), counterValue(t, rec.catalogFetchTotal.WithLabelValues("openrouter", "true")))
}

func TestPrometheusRecorderRecordsCircuitBreakerStateAsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.RecordCircuitBreakerState("anthropic", true)
	var m dto.Metric
	require.NoError(t, rec.circuitBreakerOpen.WithLabelValues("anthropic").Write(&m))
	assert.Equal(t, float64(1), m.GetGauge().GetValue())

	rec.RecordCircuitBreakerState("anthropic", false)
	require.NoError(t, rec.circuitBreakerOpen.WithLabelValues("anthropic").Write(&m))
	assert.Equal(t, float64(0), m.GetGauge().GetValue())
}

func TestPrometheusRecorderAccumulatesCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.RecordCost("pro", "openai/gpt-4o", 0.05)
	rec.RecordCost("pro", "openai/gpt-4o", 0.03)

	assert.InDelta(t, 0.08, counterValue(t, rec.costTotal.WithLabelValues("pro", "openai/gpt-4o")), 1e-9)
}

func TestBoolLabel(t *testing.T) {
	assert.Equal(t, "true", boolLabel(true))
	assert.Equal(t, "false", boolLabel(false))
}
