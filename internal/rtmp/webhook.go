package rtmp

import (
	"net/url"
	"strings"
)

// Action is the callback kind the media server posts.
type Action string

const (
	ActionOnPublish   Action = "on_publish"
	ActionOnUnpublish Action = "on_unpublish"
)

// CallbackPayload is the decoded shape of the media server's webhook body
// (form-encoded or JSON; internal/httpapi handles both transports and
// produces this common struct).
type CallbackPayload struct {
	Action Action `json:"action" form:"action" validate:"required,oneof=on_publish on_unpublish"`
	Stream string `json:"stream" form:"stream" validate:"required"`
	Param  string `json:"param" form:"param"`
}

// ExtractToken pulls the "token" query value out of Param, which the
// media server sends as a raw query string such as "?token=abc123".
func ExtractToken(param string) string {
	param = strings.TrimPrefix(param, "?")
	values, err := url.ParseQuery(param)
	if err != nil {
		return ""
	}
	return values.Get("token")
}
