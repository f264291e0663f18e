package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/admission"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/auth"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/ratelimit"
)

const ctxRequestID = "gatewayz.request_id"
const ctxAPIKey = "gatewayz.api_key"

// requestID assigns a request id ahead of every other middleware so
// error envelopes always carry one (spec.md §6.5).
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxRequestID, uuid.NewString())
		c.Next()
	}
}

// admissionMiddleware is the first gate in the pipeline (spec.md §4.1):
// acquire a concurrency slot before auth or rate limiting run at all.
func admissionMiddleware(gate *admission.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		release, err := gate.Acquire(c.Request.Context())
		if err != nil {
			WriteError(c, ErrServerOverload, "server overloaded, try again shortly", nil)
			return
		}
		defer release()
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if k := c.GetHeader("X-API-Key"); k != "" {
		return k
	}
	return ""
}

// rateLimitMiddleware enforces spec.md §4.2 ahead of auth: unauthenticated
// callers are classified by IP/fingerprint; authenticated callers bypass
// entirely (the limiter's own rule).
func rateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := ratelimit.Request{
			Authenticated: bearerToken(c) != "",
			RemoteIP:      c.ClientIP(),
			ForwardedFor:  c.GetHeader("X-Forwarded-For"),
			UserAgent:     c.GetHeader("User-Agent"),
			AcceptLang:    c.GetHeader("Accept-Language"),
			AcceptEnc:     c.GetHeader("Accept-Encoding"),
			HasProxyHdr:   c.GetHeader("Via") != "" || c.GetHeader("X-Forwarded-Host") != "",
		}

		decision, err := limiter.Check(c.Request.Context(), req)
		if err == nil {
			for k, v := range ratelimit.Headers(decision) {
				c.Header(k, v[0])
			}
		}
		if !decision.Allowed {
			kind := ErrSecurityLimit
			if decision.Type == ratelimit.TypeBehavioralLimit {
				kind = ErrBehavioralLimit
			}
			c.Header("Retry-After", "60")
			WriteError(c, kind, "rate limit exceeded", map[string]any{"limit": decision.Limit})
			return
		}

		c.Next()

		limiter.RecordOutcome(ratelimit.Outcome{StatusCode: c.Writer.Status(), Duration: time.Since(start)})
	}
}

// authMiddleware resolves the caller's API key, grounded on the teacher's
// middleware/auth.go authHelper shape (resolve-or-401, c.Set the
// identity, c.Next()) but driven by auth.Service instead of a session
// store.
func authMiddleware(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearerToken(c)
		if key == "" {
			WriteError(c, ErrInvalidAPIKey, "missing API key", nil)
			return
		}

		user, _, err := svc.ResolveUser(c.Request.Context(), key)
		if err != nil {
			WriteError(c, ErrInvalidAPIKey, "invalid API key", nil)
			return
		}

		c.Set(ctxAPIKey, key)
		c.Set("gatewayz.user", user)
		c.Next()
	}
}

// websocketGuard rejects any upgrade attempt against the inference
// endpoint (spec.md §4.10 "not a websocket endpoint"; SPEC_FULL.md
// domain-stack note pairing gorilla/websocket with this check).
func websocketGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			WriteError(c, ErrValidation, "websocket upgrade not supported on this endpoint", nil)
			return
		}
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	v, _ := c.Get(ctxRequestID)
	s, _ := v.(string)
	return s
}
