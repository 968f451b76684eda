// handlers_health.go - Health check handlers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const healthCheckTimeout = 3 * time.Second

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	service HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, service HealthChecker) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		service: service,
	}
}

// HandleHealth returns server health and the collaborator's reported
// status, or "error" when it cannot be reached.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	service := "error"
	if h.service != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()
		if status, err := h.service.Health(ctx); err == nil {
			service = status
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"service": service,
	})
}
