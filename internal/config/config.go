// Package config loads the gateway's environment-driven configuration.
//
// Grounded on the teacher's common/config package: env-first, defaulted,
// no remote config fetch. github.com/joho/godotenv loads an optional
// .env file for local development before the process environment is
// read; github.com/go-playground/validator/v10 enforces the invariants
// the rest of the pipeline assumes (positive limits, sane timeouts).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment classifies the deployment for §4.7 plan-entitlement
// multipliers.
type Environment string

const (
	EnvLive        Environment = "live"
	EnvTest        Environment = "test"
	EnvStaging     Environment = "staging"
	EnvDevelopment Environment = "development"
)

// IsLive reports whether this environment runs at full entitlement.
func (e Environment) IsLive() bool {
	return e == EnvLive || e == ""
}

// AdmissionConfig configures the §4.1 admission gate.
type AdmissionConfig struct {
	Limit        int           `validate:"gt=0"`
	QueueSize    int           `validate:"gte=0"`
	QueueTimeout time.Duration `validate:"gte=0"`
}

// RateLimitConfig configures the §4.2 behavioral rate limiter.
type RateLimitConfig struct {
	ResidentialRPM int `validate:"gt=0"`
	DatacenterRPM  int `validate:"gt=0"`
	FingerprintRPM int `validate:"gt=0"`

	VelocityErrorRatio    float64       `validate:"gt=0,lte=1"`
	VelocityMinSample     int           `validate:"gt=0"`
	VelocityEngageSeconds time.Duration `validate:"gt=0"`
	VelocityMultiplier    float64       `validate:"gt=0,lte=1"`
}

// CatalogConfig configures §4.3/§4.4/§4.6.
type CatalogConfig struct {
	Workers         int           `validate:"gt=0"`
	FetchTimeout    time.Duration `validate:"gt=0"`
	OverallDeadline time.Duration `validate:"gt=0"`
	TTL             time.Duration `validate:"gt=0"`
	StaleTTL        time.Duration `validate:"gtefield=TTL"`
	RefreshWorkers  int           `validate:"gt=0"`
}

// CircuitBreakerConfig configures §4.5.
type CircuitBreakerConfig struct {
	FailureThreshold int           `validate:"gt=0"`
	RecoveryTimeout  time.Duration `validate:"gt=0"`
	SuccessThreshold int           `validate:"gt=0"`
}

// AuthConfig configures §4.7 caching TTLs.
type AuthConfig struct {
	PlanCacheTTL          time.Duration `validate:"gt=0"`
	TrialActiveCacheTTL   time.Duration `validate:"gt=0"`
	TrialInactiveCacheTTL time.Duration `validate:"gt=0"`
	APIKeyLookupRetries   int           `validate:"gt=0"`
}

// TelemetryConfig configures the OpenTelemetry tracer/meter providers
// (SPEC_FULL.md ambient stack). Mirrors the teacher's OTEL_* env vars.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// Config is the assembled process configuration.
type Config struct {
	Environment Environment
	HTTPAddr    string `validate:"required"`
	DatabaseDSN string
	RedisURL    string

	Admission      AdmissionConfig
	RateLimit      RateLimitConfig
	Catalog        CatalogConfig
	CircuitBreaker CircuitBreakerConfig
	Auth           AuthConfig
	Telemetry      TelemetryConfig

	DefaultAggregatorProvider string `validate:"required"`
	FlatFallbackRatePerToken  string `validate:"required"` // decimal string, parsed by caller
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Load reads .env (if present) then the process environment, applying
// defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: Environment(strings.ToLower(getenv("GATEWAYZ_ENV", "live"))),
		HTTPAddr:    getenv("GATEWAYZ_HTTP_ADDR", ":8080"),
		DatabaseDSN: getenv("GATEWAYZ_DATABASE_DSN", ""),
		RedisURL:    getenv("GATEWAYZ_REDIS_URL", ""),

		Admission: AdmissionConfig{
			Limit:        getenvInt("GATEWAYZ_ADMISSION_LIMIT", 20),
			QueueSize:    getenvInt("GATEWAYZ_ADMISSION_QUEUE_SIZE", 50),
			QueueTimeout: getenvDuration("GATEWAYZ_ADMISSION_QUEUE_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			ResidentialRPM:        getenvInt("GATEWAYZ_RL_RESIDENTIAL_RPM", 300),
			DatacenterRPM:         getenvInt("GATEWAYZ_RL_DATACENTER_RPM", 60),
			FingerprintRPM:        getenvInt("GATEWAYZ_RL_FINGERPRINT_RPM", 100),
			VelocityErrorRatio:    getenvFloat("GATEWAYZ_RL_VELOCITY_ERROR_RATIO", 0.25),
			VelocityMinSample:     getenvInt("GATEWAYZ_RL_VELOCITY_MIN_SAMPLE", 100),
			VelocityEngageSeconds: getenvDuration("GATEWAYZ_RL_VELOCITY_ENGAGE", 180*time.Second),
			VelocityMultiplier:    getenvFloat("GATEWAYZ_RL_VELOCITY_MULTIPLIER", 0.5),
		},
		Catalog: CatalogConfig{
			Workers:         getenvInt("GATEWAYZ_CATALOG_WORKERS", 12),
			FetchTimeout:    getenvDuration("GATEWAYZ_CATALOG_FETCH_TIMEOUT", 15*time.Second),
			OverallDeadline: getenvDuration("GATEWAYZ_CATALOG_OVERALL_DEADLINE", 30*time.Second),
			TTL:             getenvDuration("GATEWAYZ_CATALOG_TTL", time.Hour),
			StaleTTL:        getenvDuration("GATEWAYZ_CATALOG_STALE_TTL", 2*time.Hour),
			RefreshWorkers:  getenvInt("GATEWAYZ_CATALOG_REFRESH_WORKERS", 4),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: getenvInt("GATEWAYZ_CB_FAILURE_THRESHOLD", 3),
			RecoveryTimeout:  getenvDuration("GATEWAYZ_CB_RECOVERY_TIMEOUT", 300*time.Second),
			SuccessThreshold: getenvInt("GATEWAYZ_CB_SUCCESS_THRESHOLD", 1),
		},
		Auth: AuthConfig{
			PlanCacheTTL:          getenvDuration("GATEWAYZ_AUTH_PLAN_TTL", 30*time.Second),
			TrialActiveCacheTTL:   getenvDuration("GATEWAYZ_AUTH_TRIAL_ACTIVE_TTL", 60*time.Second),
			TrialInactiveCacheTTL: getenvDuration("GATEWAYZ_AUTH_TRIAL_INACTIVE_TTL", time.Hour),
			APIKeyLookupRetries:   getenvInt("GATEWAYZ_AUTH_APIKEY_RETRIES", 3),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getenvBool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getenvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName: getenv("OTEL_SERVICE_NAME", "gatewayz"),
		},

		DefaultAggregatorProvider: getenv("GATEWAYZ_DEFAULT_AGGREGATOR", "openrouter"),
		FlatFallbackRatePerToken:  getenv("GATEWAYZ_FLAT_FALLBACK_RATE", "0.000002"),
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}
