// Package httpapi wires the gin engine spec.md §6.2's diagnostic
// endpoints and §6.1's inference endpoint, composing the admission,
// rate-limit, and auth middleware ahead of the relay handler. Grounded
// on the teacher's middleware/distributor.go composition style and its
// gin.H error-envelope convention, adapted to the structured §6.5
// envelope this spec requires.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrorKind is the §7 error taxonomy tag.
type ErrorKind string

const (
	ErrInvalidAPIKey        ErrorKind = "invalid_api_key"
	ErrTrialExpired         ErrorKind = "trial_expired"
	ErrTrialLimitExceeded   ErrorKind = "trial_limit_exceeded"
	ErrInsufficientCredits  ErrorKind = "insufficient_credits"
	ErrRateLimited          ErrorKind = "rate_limited"
	ErrSecurityLimit        ErrorKind = "security_limit"
	ErrBehavioralLimit      ErrorKind = "behavioral_limit"
	ErrServerOverload       ErrorKind = "server_overload"
	ErrProviderError        ErrorKind = "provider_error"
	ErrProviderUnavailable  ErrorKind = "provider_unavailable"
	ErrModelNotFound        ErrorKind = "model_not_found"
	ErrValidation           ErrorKind = "validation_error"
	ErrInternal             ErrorKind = "internal_error"
)

// statusFor maps a taxonomy tag to its typical HTTP status (spec.md §7).
var statusFor = map[ErrorKind]int{
	ErrInvalidAPIKey:       http.StatusUnauthorized,
	ErrTrialExpired:        http.StatusForbidden,
	ErrTrialLimitExceeded:  http.StatusForbidden,
	ErrInsufficientCredits: http.StatusPaymentRequired,
	ErrRateLimited:         http.StatusTooManyRequests,
	ErrSecurityLimit:       http.StatusTooManyRequests,
	ErrBehavioralLimit:     http.StatusTooManyRequests,
	ErrServerOverload:      http.StatusServiceUnavailable,
	ErrProviderError:       http.StatusBadGateway,
	ErrProviderUnavailable: http.StatusServiceUnavailable,
	ErrModelNotFound:       http.StatusNotFound,
	ErrValidation:          http.StatusBadRequest,
	ErrInternal:            http.StatusInternalServerError,
}

// envelope is the wire shape for every error response (spec.md §6.5).
type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Status    int            `json:"status"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError renders the §6.5 envelope and aborts the gin context. details
// carries the taxonomy's per-kind extra fields (max_cost, provider, …).
func WriteError(c *gin.Context, kind ErrorKind, message string, details map[string]any) {
	status, ok := statusFor[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	requestID, _ := c.Get(ctxRequestID)
	rid, _ := requestID.(string)
	if rid == "" {
		rid = uuid.NewString()
	}

	if kind == ErrServerOverload {
		c.Header("Retry-After", "5")
	}

	c.AbortWithStatusJSON(status, envelope{Error: envelopeBody{
		Status: status, Code: string(kind), Message: message, Type: string(kind),
		RequestID: rid, Details: details,
	}})
}
