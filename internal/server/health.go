package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 5 * time.Second

// handleHealth reports overall readiness. The service is degraded, not
// down, when the generative backend is unreachable: cached sessions and
// stats endpoints still work.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
	defer cancel()

	status := "ok"
	providerStatus := "ok"
	if err := s.Provider.Ping(ctx); err != nil {
		status = "degraded"
		providerStatus = err.Error()
	}

	stats := s.Index.Stats()
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]interface{}{
		"status":           status,
		"provider":         s.Provider.Name(),
		"provider_status":  providerStatus,
		"index_generation": stats.Generation,
		"index_articles":   stats.Articles,
	})
}
