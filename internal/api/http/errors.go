package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/tracing"
)

// StatusFor maps an error category to its HTTP status
func StatusFor(category bridge.Category) int {
	switch category {
	case bridge.CategoryMalformedInput:
		return http.StatusBadRequest
	case bridge.CategoryUnauthorized:
		return http.StatusUnauthorized
	case bridge.CategoryWindowNotFound:
		return http.StatusNotFound
	case bridge.CategoryInjectionFailed, bridge.CategorySandboxFailure:
		return http.StatusBadGateway
	case bridge.CategoryTimeout:
		return http.StatusGatewayTimeout
	case bridge.CategoryNotSupported:
		return http.StatusNotImplemented
	case bridge.CategoryCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": category, "detail": text}. Errors from
// outside the bridge are logged and reported without detail.
func (h *Handlers) respondError(c *gin.Context, err error) {
	category := bridge.CategoryOf(err)
	tracing.Fail(c.Request.Context(), string(category))
	if category == bridge.CategoryInternal {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(StatusFor(category), gin.H{
		"error":  string(category),
		"detail": bridge.DetailOf(err),
	})
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.respondError(c, bridge.MalformedInput("invalid request: %v", err))
}

// timeoutFrom converts an optional timeout_ms. Zero picks the operation
// default; the bridge caps anything above its maximum.
func timeoutFrom(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, errors.New("timeout_ms must not be negative")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
