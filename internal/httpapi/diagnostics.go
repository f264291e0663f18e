package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router/coderouter"
)

// Concurrency implements GET /api/diagnostics/concurrency (spec.md §6.2):
// the admission gate's current occupancy.
func (s *Server) Concurrency(c *gin.Context) {
	snap := s.gate.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"limit":      snap.Limit,
		"queue_size": snap.QueueSize,
		"queued":     snap.Queued,
		"in_flight":  s.gate.InFlight(),
	})
}

// ProviderTiming implements GET /api/diagnostics/provider-timing: each
// configured provider's circuit-breaker snapshot, the closest proxy this
// gateway has for per-provider health without a separate latency
// histogram store (spec.md §6.2, §4.5).
func (s *Server) ProviderTiming(c *gin.Context) {
	out := make([]gin.H, 0, len(s.providerSlugs))
	for _, slug := range s.providerSlugs {
		snap := s.breakers.Snapshot(slug)
		out = append(out, gin.H{
			"provider":             snap.Provider,
			"open":                 snap.Open,
			"half_open":            snap.HalfOpen,
			"consecutive_failures": snap.ConsecutiveFailures,
			"total_failures":       snap.TotalFailures,
			"total_requests":       snap.TotalRequests,
			"last_failure_time":    snap.LastFailureTime,
			"last_success_time":    snap.LastSuccessTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// Health implements GET /api/diagnostics/health: a liveness probe that
// also reports catalog freshness, used ahead of a load balancer (spec.md
// §6.2).
func (s *Server) Health(c *gin.Context) {
	models := s.catalog.AllModels()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"model_count": len(models),
		"time":        time.Now().UTC(),
	})
}

// RouterSettings implements GET /api/diagnostics/router/settings: the
// code router's category gates and tier rosters (spec.md §6.2,
// supplemented diagnostics surface).
func (s *Server) RouterSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gates": s.priors.Gates,
		"tiers": s.priors.Tiers,
	})
}

// RouterTest implements POST /api/diagnostics/router/test: runs
// classification and model selection for a prompt without making an
// inference call, for router debugging (spec.md §6.2).
func (s *Server) RouterTest(c *gin.Context) {
	var body struct {
		Prompt            string `json:"prompt"`
		ConversationTurns int    `json:"conversation_turns"`
		Mode              string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		WriteError(c, ErrValidation, "invalid request body: "+err.Error(), nil)
		return
	}

	decision := s.codeRouter.Route(body.Prompt, body.ConversationTurns, coderouter.ParseMode(body.Mode))
	c.JSON(http.StatusOK, gin.H{
		"category":    decision.Category,
		"confidence":  decision.Confidence,
		"mode":        decision.Mode,
		"tier":        decision.Tier,
		"model":       decision.Model,
		"savings_usd": decision.SavingsUSD,
	})
}

// CacheInvalidate implements POST /api/diagnostics/cache/invalidate: drops
// a cached user record by id, for operators fixing a stale plan/credit
// read without waiting out the TTL (SPEC_FULL.md supplemented admin
// endpoint).
func (s *Server) CacheInvalidate(c *gin.Context) {
	var body struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		WriteError(c, ErrValidation, "invalid request body: "+err.Error(), nil)
		return
	}
	s.auth.InvalidateUser(c.Request.Context(), body.UserID)
	c.JSON(http.StatusOK, gin.H{"invalidated": body.UserID})
}
