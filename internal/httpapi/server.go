// Package httpapi wires the fabric's external HTTP surface: the
// notification WebSocket, the livestream chat WebSocket, the RTMP
// publish webhook, and the notification REST endpoints, all behind a
// single echo server with a uniform error envelope.
package httpapi

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/social-eventfabric/realtime/internal/chatroom"
	"github.com/social-eventfabric/realtime/internal/livestream"
	"github.com/social-eventfabric/realtime/internal/notify"
	"github.com/social-eventfabric/realtime/internal/rtmp"
	"github.com/social-eventfabric/realtime/internal/wsgateway"
	"github.com/social-eventfabric/realtime/pkg/api/middleware"
	"github.com/social-eventfabric/realtime/pkg/validator"
)

// MonitorNotifier kicks off moderation monitoring for a stream that just
// started publishing. In the gateway process this is an HTTP call to
// cmd/monitor's own endpoint, since the Registry it guards lives in a
// separate, independently scaled process; in cmd/monitor itself (which
// owns the Registry directly) it is not needed.
type MonitorNotifier interface {
	NotifyLive(ctx context.Context, streamID, userID string) error
}

// Server is the fabric's HTTP/WebSocket front door.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	manager         *wsgateway.ConnectionManager
	notify          *notify.Service
	chat            *chatroom.Hub
	rtmp            *rtmp.Service
	monitors        *livestream.Registry
	monitorNotifier MonitorNotifier
	wsParams        wsgateway.Params
	upgrader        websocket.Upgrader
	validate        *validator.Validator
}

// Deps bundles the services a Server routes requests to.
type Deps struct {
	Manager         *wsgateway.ConnectionManager
	Notify          *notify.Service
	Chat            *chatroom.Hub
	RTMP            *rtmp.Service
	Monitors        *livestream.Registry
	MonitorNotifier MonitorNotifier
	WSParams        wsgateway.Params
}

// NewServer builds the echo app and registers every route.
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("2M"))
	e.Use(echo.WrapMiddleware(middleware.RequestIDMiddleware()))

	s := &Server{
		echo:            e,
		manager:         deps.Manager,
		notify:          deps.Notify,
		chat:            deps.Chat,
		rtmp:            deps.RTMP,
		monitors:        deps.Monitors,
		monitorNotifier: deps.MonitorNotifier,
		wsParams:        deps.WSParams,
		validate:        validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthHandler)

	identity := echo.WrapMiddleware(middleware.IdentityMiddleware())
	s.echo.GET("/ws", s.wsHandler, identity)
	s.echo.GET("/ws/live/:stream_id", s.chatHandler, identity)

	s.echo.POST("/rtmp/callback", s.rtmpCallbackHandler)

	v1 := s.echo.Group("/api/v1", identity)
	v1.GET("/notifications", s.listNotificationsHandler)
	v1.POST("/notifications/:id/read", s.markReadHandler)
	v1.DELETE("/notifications/:id", s.deleteNotificationHandler)

	// Monitor start is an internal trigger called by the publish flow, not
	// an end-user action, so it sits outside the identity-gated group.
	if s.monitors != nil {
		s.echo.POST("/internal/streams/:stream_id/monitor", s.startMonitoringHandler)
	}
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves on addr, blocking until the listener errors or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// StartWithListener serves on a pre-created listener, used by tests that
// need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	err := s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new upgrades and drains existing HTTP
// handling within ctx's deadline. It does not itself tear down
// established WebSocket connections; that is ConnectionManager.Shutdown's
// job, called separately by cmd/gateway's shutdown sequence.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
