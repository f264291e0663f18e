package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/admission"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/auth"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/catalog"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/circuitbreaker"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/ratelimit"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/relay"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router/coderouter"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router/generalrouter"
)

// Server wires every HTTP-facing dependency into a gin engine (spec.md
// §6). Grounded on the teacher's router.SetRouter/SetWebRouter split
// (one function assembling middleware and route groups against a
// pre-built *gin.Engine).
type Server struct {
	gate          *admission.Gate
	limiter       *ratelimit.Limiter
	auth          *auth.Service
	relay         *relay.Handler
	codeRouter    *coderouter.CodeRouter
	generalRouter *generalrouter.Router
	priors        *coderouter.Priors
	catalog       *catalog.Registry
	breakers      *circuitbreaker.Registry
	providerSlugs []string
	registry      *prometheus.Registry
}

// New builds a Server from its fully-constructed dependencies; cmd/gatewayz
// is the only caller.
func New(
	gate *admission.Gate,
	limiter *ratelimit.Limiter,
	authSvc *auth.Service,
	relayHandler *relay.Handler,
	codeRouter *coderouter.CodeRouter,
	priors *coderouter.Priors,
	generalRouter *generalrouter.Router,
	catalogReg *catalog.Registry,
	breakers *circuitbreaker.Registry,
	providerSlugs []string,
	promRegistry *prometheus.Registry,
) *Server {
	return &Server{
		gate: gate, limiter: limiter, auth: authSvc, relay: relayHandler,
		codeRouter: codeRouter, priors: priors, generalRouter: generalRouter,
		catalog: catalogReg, breakers: breakers, providerSlugs: providerSlugs,
		registry: promRegistry,
	}
}

// Engine assembles the full gin engine: global middleware, the
// admission→rate-limit→auth chain ahead of inference, and the
// unauthenticated diagnostics/metrics surface (spec.md §6.2's endpoints
// carry no auth requirement, matching the teacher's public status-page
// routes).
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(cors.Default())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	diag := r.Group("/api/diagnostics")
	{
		diag.GET("/concurrency", s.Concurrency)
		diag.GET("/provider-timing", s.ProviderTiming)
		diag.GET("/health", s.Health)
		diag.GET("/router/settings", s.RouterSettings)
		diag.POST("/router/test", s.RouterTest)
		diag.POST("/cache/invalidate", s.CacheInvalidate)
	}

	v1 := r.Group("/v1")
	v1.Use(admissionMiddleware(s.gate))
	v1.Use(rateLimitMiddleware(s.limiter))
	v1.Use(authMiddleware(s.auth))
	v1.Use(websocketGuard())
	{
		v1.POST("/chat/completions", s.ChatCompletions)
	}

	return r
}
