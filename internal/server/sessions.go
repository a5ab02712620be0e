package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleDeleteSession removes a session. Deleting an unknown or already
// expired id succeeds, so clients can clear state unconditionally.
func (s *Server) handleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.Sessions.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

func (s *Server) handleSessionStats(c echo.Context) error {
	stats, err := s.Sessions.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
