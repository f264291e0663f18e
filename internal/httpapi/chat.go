package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/auth"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/relay"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router/coderouter"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router/generalrouter"
)

// resolveModel applies the router:code / router:general dispatch (spec.md
// §4.9) ahead of the relay handler, rewriting req.Model to the concrete
// gateway model id the inference handler and pricing service understand.
// The last user message is the prompt passed to the code router's
// classifier.
func (s *Server) resolveModel(c *gin.Context, req *domain.InternalChatRequest) error {
	if mode, ok := router.IsCodeRouter(req.Model); ok {
		prompt := lastUserContent(req.Messages)
		decision := s.codeRouter.Route(prompt, len(req.Messages), coderouter.ParseMode(mode))
		c.Set("gatewayz.router_decision", decision)
		req.Model = decision.Model
		return nil
	}
	if mode, ok := router.IsGeneralRouter(req.Model); ok {
		decision := s.generalRouter.Route(c.Request.Context(), req.Messages, generalrouter.ParseMode(mode))
		c.Set("gatewayz.router_decision", decision)
		req.Model = decision.Model
		return nil
	}
	return nil
}

func lastUserContent(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			if s, ok := messages[i].Content.(string); ok {
				return s
			}
		}
	}
	return ""
}

// ChatCompletions implements spec.md §6.1 POST /v1/chat/completions,
// dispatching to the streaming or non-streaming relay path.
func (s *Server) ChatCompletions(c *gin.Context) {
	var req domain.InternalChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, ErrValidation, "invalid request body: "+err.Error(), nil)
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		WriteError(c, ErrValidation, "model and messages are required", nil)
		return
	}

	if err := s.resolveModel(c, &req); err != nil {
		WriteError(c, ErrValidation, err.Error(), nil)
		return
	}

	apiKey := bearerToken(c)

	if req.Stream {
		s.streamChatCompletions(c, apiKey, req)
		return
	}

	resp, err := s.relay.ChatCompletion(c.Request.Context(), apiKey, req)
	if err != nil {
		writeRelayError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) streamChatCompletions(c *gin.Context, apiKey string, req domain.InternalChatRequest) {
	chunks, result, err := s.relay.ChatCompletionStream(c.Request.Context(), apiKey, req)
	if err != nil {
		writeRelayError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		if canFlush {
			flusher.Flush()
		}
	}
	io.WriteString(c.Writer, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}

	<-result // wait until the relay's charge/persist tail has finished
}

// writeRelayError maps a relay-layer error to the §7 taxonomy. Insufficient
// credits, missing usage and a failed charge are distinguished by sentinel;
// anything else is treated as an upstream provider failure.
func writeRelayError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInsufficientCredits):
		WriteError(c, ErrInsufficientCredits, err.Error(), nil)
	case errors.Is(err, relay.ErrMissingUsage):
		WriteError(c, ErrInternal, err.Error(), map[string]any{"operation": "extract_usage"})
	case errors.Is(err, relay.ErrChargeFailed):
		WriteError(c, ErrInternal, err.Error(), map[string]any{"operation": "credit_deduction"})
	default:
		WriteError(c, ErrProviderError, err.Error(), nil)
	}
}
