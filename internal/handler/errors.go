package handler

import (
	"net/http"

	"rentline-api/internal/service"
	"rentline-api/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// respondError maps service error kinds to HTTP responses. Internal details
// never leak: unexpected failures are logged in full and surfaced opaquely.
// Resource exhaustion gets its own retryable-looking status instead of
// disappearing into a 500.
func respondError(c echo.Context, err error) error {
	log := logger.FromContext(c)

	switch service.KindOf(err) {
	case service.KindUnauthorized:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case service.KindNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case service.KindValidation:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case service.KindResourceExhausted:
		log.Warn("Request rejected, backing store saturated", zap.Error(err))
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
	default:
		log.Error("Unexpected failure", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
