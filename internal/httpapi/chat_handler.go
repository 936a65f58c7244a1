package httpapi

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/social-eventfabric/realtime/internal/chatroom"
	"github.com/social-eventfabric/realtime/internal/wsgateway"
	"github.com/social-eventfabric/realtime/pkg/api/middleware"
	"github.com/social-eventfabric/realtime/pkg/logger"
)

// chatHandler upgrades a trusted-identity request to a livestream chat
// socket scoped to the stream_id path parameter. Inbound frames are
// handed to the chat hub; the connection leaves its room once its pumps
// exit, however that happens (client disconnect, rate-limit violation,
// or server shutdown).
func (s *Server) chatHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID := middleware.GetUserID(ctx)
	streamID := c.Param("stream_id")
	username := c.QueryParam("username")
	if username == "" {
		username = userID
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.L().WarnContext(ctx, "chat websocket upgrade failed", "error", err)
		return nil
	}

	client := &chatroom.Client{UserID: userID, Username: username}
	onInbound := func(ctx context.Context, _ *wsgateway.Connection, payload []byte) {
		s.chat.HandleInbound(ctx, streamID, client, payload)
	}
	wsConn := wsgateway.NewConnection(ctx, userID, conn, s.wsParams, onInbound)
	client.Conn = wsConn

	s.chat.Join(ctx, streamID, client)
	defer s.chat.Leave(context.Background(), streamID, client)
	wsConn.Run()
	return nil
}
