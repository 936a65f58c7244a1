package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type startMonitoringRequest struct {
	UserID string `json:"user_id"`
}

type startMonitoringResponse struct {
	Started bool `json:"started"`
}

// startMonitoringHandler handles POST /internal/streams/:stream_id/monitor,
// used by the publish flow to kick off moderation monitoring once a
// stream transitions to live. Idempotent: a stream already being
// monitored reports started=false rather than erroring.
func (s *Server) startMonitoringHandler(c echo.Context) error {
	var req startMonitoringRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	started := s.monitors.StartMonitoring(c.Request().Context(), c.Param("stream_id"), req.UserID)
	return c.JSON(http.StatusOK, startMonitoringResponse{Started: started})
}
