// Command gatewayz is the gateway's process entrypoint: loads
// configuration, wires every subsystem, and serves the gin engine built
// by internal/httpapi. Grounded on the teacher's main.go (env/flag load
// → model.SetupDB → relay/adaptor registration → router.SetRouter →
// srv.Run), adapted to this module's subsystem seams.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/Laisky/zap"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/admission"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/auth"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/cache"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/anthropic"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/bedrock"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/coze"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/openai"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/openaicompat"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog/provider/vertex"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/circuitbreaker"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/config"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/httpapi"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/pricing"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providerapi"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/ratelimit"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/relay"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router/coderouter"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router/generalrouter"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/store"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/telemetry"
)

var errNoSelector = errors.New("gatewayz: no external model selector configured")

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatal("load config", zap.Error(err))
	}

	if cfg.Environment == config.EnvDevelopment {
		dev, _ := zap.NewDevelopment()
		logging.Set(dev)
	}

	otelBundle, err := telemetry.Init(context.Background(), cfg.Telemetry, cfg.Environment)
	if err != nil {
		logging.Logger.Fatal("init telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelBundle.Shutdown(shutdownCtx)
	}()

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		logging.Logger.Fatal("open store", zap.Error(err))
	}

	kv, err := buildCounterStore(cfg.RedisURL)
	if err != nil {
		logging.Logger.Fatal("build cache store", zap.Error(err))
	}

	promReg := prometheus.NewRegistry()
	metrics.SetGlobal(metrics.NewPrometheusRecorder(promReg))

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.CircuitBreaker.RecoveryTimeout,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
	})

	registry := catalog.NewRegistry()
	fetchers, chatProviders := buildProviders()
	aggregator := catalog.NewAggregator(catalog.Config{
		Workers:         cfg.Catalog.Workers,
		FetchTimeout:    cfg.Catalog.FetchTimeout,
		OverallDeadline: cfg.Catalog.OverallDeadline,
		TTL:             cfg.Catalog.TTL,
		StaleTTL:        cfg.Catalog.StaleTTL,
		RefreshWorkers:  cfg.Catalog.RefreshWorkers,
	}, fetchers, breakers, registry, st)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Catalog.OverallDeadline)
	if _, err := aggregator.GetAllModels(ctx); err != nil {
		logging.Logger.Warn("initial catalog fetch failed, serving with an empty catalog", zap.Error(err))
	}
	cancel()

	flatRate, err := decimal.NewFromString(cfg.FlatFallbackRatePerToken)
	if err != nil {
		logging.Logger.Fatal("parse flat fallback rate", zap.Error(err))
	}

	authSvc := auth.New(st, kv, cfg.Auth, cfg.Environment)
	pricingSvc := pricing.New(st, registry, flatRate)

	gate := admission.New(admission.Config{
		Limit: cfg.Admission.Limit, QueueSize: cfg.Admission.QueueSize, QueueTimeout: cfg.Admission.QueueTimeout,
	})
	limiter := ratelimit.New(ratelimit.Config{
		ResidentialRPM: cfg.RateLimit.ResidentialRPM, DatacenterRPM: cfg.RateLimit.DatacenterRPM,
		FingerprintRPM: cfg.RateLimit.FingerprintRPM, VelocityErrorRatio: cfg.RateLimit.VelocityErrorRatio,
		VelocityMinSample: cfg.RateLimit.VelocityMinSample, VelocityEngageSeconds: cfg.RateLimit.VelocityEngageSeconds,
		VelocityMultiplier: cfg.RateLimit.VelocityMultiplier,
	}, kv)

	mpRouter := router.New(registry, breakers, chatProviders, cfg.DefaultAggregatorProvider)
	relayHandler := relay.New(authSvc, pricingSvc, mpRouter, st, cfg.Environment != config.EnvDevelopment)

	priors := coderouter.LoadPriors(os.Getenv("GATEWAYZ_CODE_ROUTER_PRIORS_PATH"))
	baseline := coderouter.ModelEntry{ID: "openai/gpt-4o"}
	codeRouter := coderouter.New(priors, baseline)

	genRouter := generalrouter.New(
		generalSelector{},
		registry,
		map[string]string{}, // static native->gateway map; extend as selector vocabulary grows
		[]string{"openai/gpt-4o", "anthropic/claude-sonnet-4", "openai/gpt-4o-mini"},
	)

	providerSlugs := make([]string, 0, len(chatProviders))
	for slug := range chatProviders {
		providerSlugs = append(providerSlugs, slug)
	}

	srv := httpapi.New(gate, limiter, authSvc, relayHandler, codeRouter, priors, genRouter, registry, breakers, providerSlugs, promReg)
	engine := srv.Engine()

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}

	go func() {
		logging.Logger.Info("gatewayz listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("http server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func buildCounterStore(redisURL string) (cache.CounterStore, error) {
	if redisURL == "" {
		return cache.NewMemoryStore(30 * time.Second), nil
	}
	return cache.NewRedisStore(redisURL)
}

// buildProviders wires the configured upstream adaptors as both catalog
// fetchers and chat providers, plus an OpenAI-compatible aggregator
// fetcher for the DefaultAggregatorProvider fallback (spec.md §4.8).
func buildProviders() ([]catalog.Fetcher, map[string]providerapi.ChatProvider) {
	chatProviders := make(map[string]providerapi.ChatProvider)

	anthropicP := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"))
	bedrockP := bedrock.New(
		[]string{"us-east-1", "us-west-2"},
		map[string]bedrock.Credentials{},
	)
	cozeP := coze.New(os.Getenv("COZE_API_TOKEN"), os.Getenv("COZE_SPACE_ID"))
	openaiP := openai.New(os.Getenv("OPENAI_API_KEY"), map[string]bool{})
	vertexP, err := vertex.New(context.Background(), os.Getenv("GOOGLE_API_KEY"), os.Getenv("GOOGLE_PROJECT_ID"), os.Getenv("GOOGLE_LOCATION"))
	if err != nil {
		logging.Logger.Warn("vertex provider unavailable", zap.Error(err))
	}
	openrouterP := openaicompat.New("openrouter", "openrouter",
		"https://openrouter.ai/api/v1", os.Getenv("OPENROUTER_API_KEY"),
		catalogNormalizeOptions())

	fetchers := []catalog.Fetcher{anthropicP, bedrockP, cozeP, openaiP, openrouterP}
	chatProviders[anthropicP.Slug()] = anthropicP
	chatProviders[bedrockP.Slug()] = bedrockP
	chatProviders[cozeP.Slug()] = cozeP
	chatProviders[openaiP.Slug()] = openaiP
	chatProviders[openrouterP.Slug()] = openrouterP
	if vertexP != nil {
		fetchers = append(fetchers, vertexP)
		chatProviders[vertexP.Slug()] = vertexP
	}

	return fetchers, chatProviders
}

func catalogNormalizeOptions() catalog.NormalizeOptions {
	return catalog.NormalizeOptions{DefaultContextLength: 128_000}
}

// generalSelector is a stub Selector until an external selection service
// is configured; it always errors so generalrouter.Router falls back to
// its mode-specific default (spec.md §4.9.2 "exception" fallback_reason).
type generalSelector struct{}

func (generalSelector) Select(ctx context.Context, messages []domain.Message, candidateModelIDs []string, preference string) (string, error) {
	return "", errNoSelector
}
