package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newspulse/internal/index"
)

func (s *Server) handleIndexStats(c echo.Context) error {
	stats := s.Index.Stats()
	s.metrics.indexGeneration.Set(float64(stats.Generation))
	return c.JSON(http.StatusOK, stats)
}

// handleRebuildIndex forces a rebuild. Queries keep being served from the
// prior snapshot while it runs; a second rebuild request gets a conflict.
func (s *Server) handleRebuildIndex(c echo.Context) error {
	generation, err := s.Index.ForceReload(c.Request().Context())
	if err != nil {
		if errors.Is(err, index.ErrRebuildInProgress) {
			return echo.NewHTTPError(http.StatusConflict, "rebuild already in progress")
		}
		return err
	}
	s.metrics.indexGeneration.Set(float64(generation))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "rebuilt",
		"generation": generation,
		"articles":   s.Index.Current().Size(),
	})
}
