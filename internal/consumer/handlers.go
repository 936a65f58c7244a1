package consumer

import (
	"context"

	"github.com/social-eventfabric/realtime/internal/domain"
)

// FollowerLookup resolves the follower graph for a post author. Its
// consistency model is owned by whatever service actually stores the
// social graph; this fabric only consumes the list.
type FollowerLookup func(ctx context.Context, userID string) ([]string, error)

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// route describes how one aggregatable routing key turns into a
// notification write. comment.replied, user.followed, and
// community.joined are not aggregatable and are handled directly in
// consumer.go instead of through this table.
type route struct {
	notificationType string
	verb             string
	linkTemplate     string
}

var routes = map[domain.RoutingKey]route{
	domain.RoutingPostLiked: {
		notificationType: "post.liked",
		verb:             "liked your post",
		linkTemplate:     "/posts/{post_id}",
	},
	domain.RoutingPostCommented: {
		notificationType: "post.commented",
		verb:             "commented on your post",
		linkTemplate:     "/posts/{post_id}",
	},
}
