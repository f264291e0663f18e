package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/v1/chat/completions", nil)
	return c, w
}

func TestWriteErrorUsesTaxonomyStatus(t *testing.T) {
	c, w := newTestContext()
	WriteError(c, ErrInsufficientCredits, "not enough credits", nil)

	assert.Equal(t, 402, w.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_credits", body.Error.Code)
	assert.Equal(t, "not enough credits", body.Error.Message)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestWriteErrorSetsRetryAfterForServerOverload(t *testing.T) {
	c, w := newTestContext()
	WriteError(c, ErrServerOverload, "overloaded", nil)

	assert.Equal(t, 503, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestWriteErrorReusesRequestIDFromContext(t *testing.T) {
	c, w := newTestContext()
	c.Set(ctxRequestID, "req-123")
	WriteError(c, ErrValidation, "bad input", nil)

	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-123", body.Error.RequestID)
}

func TestWriteErrorIncludesDetails(t *testing.T) {
	c, w := newTestContext()
	WriteError(c, ErrModelNotFound, "unknown model", map[string]any{"model": "ghost/1"})

	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ghost/1", body.Error.Details["model"])
}

func TestWriteErrorUnknownKindFallsBackTo500(t *testing.T) {
	c, w := newTestContext()
	WriteError(c, ErrorKind("not_a_real_kind"), "oops", nil)
	assert.Equal(t, 500, w.Code)
}
