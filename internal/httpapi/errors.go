package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
)

// errorEnvelope is the REST error body shape: {"error":{"code","message"}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPErrorHandler replaces echo's default error handler so every
// non-2xx response uses the error envelope, whether the handler
// returned an *apperrors.AppError or echo produced its own *echo.HTTPError
// (routing failures, body-too-large, etc).
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apperrors.AppError
	if apperrors.As(err, &ae) {
		_ = c.JSON(ae.HTTPStatus(), errorEnvelope{Error: errorBody{Code: ae.Code, Message: ae.Message}})
		return
	}

	if he, ok := err.(*echo.HTTPError); ok {
		msg, _ := he.Message.(string)
		_ = c.JSON(he.Code, errorEnvelope{Error: errorBody{Code: apperrors.CodeInternal, Message: msg}})
		return
	}

	_ = c.JSON(http.StatusInternalServerError, errorEnvelope{Error: errorBody{Code: apperrors.CodeInternal, Message: "internal server error"}})
}
