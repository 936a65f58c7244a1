package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/social-eventfabric/realtime/pkg/api/middleware"
)

const defaultNotificationLimit = 50

// listNotificationsHandler handles GET /api/v1/notifications?limit=N for
// the trusted user identified by X-User-Id/user_id.
func (s *Server) listNotificationsHandler(c echo.Context) error {
	userID := middleware.GetUserID(c.Request().Context())
	limit := defaultNotificationLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	ns, err := s.notify.FindByUser(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ns)
}

// markReadHandler handles POST /api/v1/notifications/:id/read.
func (s *Server) markReadHandler(c echo.Context) error {
	if err := s.notify.MarkRead(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteNotificationHandler handles DELETE /api/v1/notifications/:id.
func (s *Server) deleteNotificationHandler(c echo.Context) error {
	if err := s.notify.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
