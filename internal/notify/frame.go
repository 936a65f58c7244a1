package notify

import (
	"encoding/json"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
)

func encodeFrame(n *domain.Notification) ([]byte, error) {
	f := Frame{
		EventType: n.NotificationType,
		UserIDs:   []string{n.UserID},
		Payload: FramePayload{
			Title:     n.TitleTemplate,
			Body:      n.BodyTemplate,
			Link:      n.LinkURL,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		},
	}
	return json.Marshal(f)
}
