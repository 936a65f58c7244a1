package httpapi

import (
	"github.com/labstack/echo/v4"

	"github.com/social-eventfabric/realtime/internal/wsgateway"
	"github.com/social-eventfabric/realtime/pkg/api/middleware"
	"github.com/social-eventfabric/realtime/pkg/logger"
)

// wsHandler upgrades a trusted-identity request to a notification push
// socket with no inbound protocol: the connection only ever receives
// frames published by internal/notify via the ConnectionManager.
func (s *Server) wsHandler(c echo.Context) error {
	userID := middleware.GetUserID(c.Request().Context())

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.L().WarnContext(c.Request().Context(), "websocket upgrade failed", "error", err)
		return nil
	}

	wsConn := wsgateway.NewConnection(c.Request().Context(), userID, conn, s.wsParams, nil)
	s.manager.Add(wsConn)
	defer s.manager.Remove(wsConn)
	wsConn.Run()
	return nil
}
