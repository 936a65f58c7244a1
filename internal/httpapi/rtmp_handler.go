package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/social-eventfabric/realtime/internal/rtmp"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/validator"
)

type rtmpCallbackResponse struct {
	Code rtmp.Code `json:"code"`
}

// rtmpCallbackHandler decodes the media server's on_publish/on_unpublish
// webhook (form- or JSON-encoded; echo's Bind handles either from the
// CallbackPayload struct tags) and returns the accept/reject code the
// media server expects.
func (s *Server) rtmpCallbackHandler(c echo.Context) error {
	var payload rtmp.CallbackPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusOK, rtmpCallbackResponse{Code: rtmp.CodeReject})
	}
	if err := s.validate.ValidateStruct(&payload); err != nil {
		return c.JSON(http.StatusOK, rtmpCallbackResponse{Code: rtmp.CodeReject})
	}

	ctx := c.Request().Context()
	var code rtmp.Code
	switch payload.Action {
	case rtmp.ActionOnPublish:
		code = s.rtmp.OnPublish(ctx, payload.Stream, rtmp.ExtractToken(payload.Param))
		if code == rtmp.CodeAccept && s.monitorNotifier != nil {
			go s.notifyMonitor(payload.Stream)
		}
	case rtmp.ActionOnUnpublish:
		code = s.rtmp.OnUnpublish(ctx, payload.Stream)
	default:
		code = rtmp.CodeReject
	}

	return c.JSON(http.StatusOK, rtmpCallbackResponse{Code: code})
}

// notifyMonitor runs detached from the webhook's request context, which
// the media server cancels the instant it gets its response.
func (s *Server) notifyMonitor(streamID string) {
	ctx := context.Background()
	userID, err := s.rtmp.UserIDFor(ctx, streamID)
	if err != nil {
		logger.L().WarnContext(ctx, "could not resolve stream owner for monitoring", "stream_id", streamID, "error", err)
		return
	}
	if err := s.monitorNotifier.NotifyLive(ctx, streamID, userID); err != nil {
		logger.L().ErrorContext(ctx, "failed to notify monitor service", "stream_id", streamID, "error", err)
	}
}
