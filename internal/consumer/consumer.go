// Package consumer reads events off the bus, deduplicates them, and
// turns each into one or more notification writes.
package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/social-eventfabric/realtime/internal/domain"
	"github.com/social-eventfabric/realtime/internal/idempotency"
	"github.com/social-eventfabric/realtime/internal/notify"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/messaging"
)

const dedupNamespace = "processed_msg:"

// Options configures a Consumer.
type Options struct {
	// DedupTTL bounds how long a processed message id is remembered.
	DedupTTL time.Duration
	// Followers resolves the follower graph for post.created fan-out.
	Followers FollowerLookup
}

// Consumer wires a messaging.Consumer to the notification store via the
// dedup store and the routing table in handlers.go.
type Consumer struct {
	notify    *notify.Service
	dedup     *idempotency.Store
	ttl       time.Duration
	followers FollowerLookup
}

func New(notifySvc *notify.Service, dedup *idempotency.Store, opts Options) *Consumer {
	return &Consumer{
		notify:    notifySvc,
		dedup:     dedup,
		ttl:       opts.DedupTTL,
		followers: opts.Followers,
	}
}

// Handle is the messaging.MessageHandler wired to the broker consumer.
// Returning an error triggers the adapter's nack-without-requeue path;
// returning nil acks, including for rejected/duplicate/unroutable input
// that this fabric intentionally drops rather than retries.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	ev, err := decode(msg)
	if err != nil {
		logger.L().WarnContext(ctx, "dropping unparseable event", "error", err)
		return nil
	}

	if !domain.ValidRoutingKeys[ev.RoutingKey] {
		logger.L().WarnContext(ctx, "dropping event with unknown routing key", "routing_key", ev.RoutingKey)
		return nil
	}

	key := DedupKey(ev)
	outcome, err := c.dedup.CheckAndMark(ctx, dedupNamespace, key, c.ttl)
	if err != nil {
		// Idempotency store unreachable: degrade to at-least-once delivery
		// without dedup rather than stall the whole pipeline.
		logger.L().WarnContext(ctx, "idempotency store unreachable, proceeding without dedup", "error", err)
	} else if outcome == idempotency.Duplicate {
		logger.L().InfoContext(ctx, "duplicate event suppressed", "routing_key", ev.RoutingKey, "dedup_key", key)
		return nil
	}

	if err := c.dispatch(ctx, ev); err != nil {
		if isTransient(err) {
			_ = c.dedup.Remove(ctx, dedupNamespace, key)
			return err
		}
		logger.L().WarnContext(ctx, "dropping event after non-transient processing failure", "routing_key", ev.RoutingKey, "error", err)
		return nil
	}
	return nil
}

// dispatch routes an event to its handler. Only post.liked and
// post.commented aggregate onto an existing notification row; every
// other kind always creates a fresh one (spec §4.1's dispatch table).
func (c *Consumer) dispatch(ctx context.Context, ev *domain.Event) error {
	switch ev.RoutingKey {
	case domain.RoutingPostCreated:
		return c.handlePostCreated(ctx, ev)
	case domain.RoutingViolationEvents:
		return c.handleViolation(ctx, ev)
	case domain.RoutingCommentReplied:
		return c.handleCommentReplied(ctx, ev)
	case domain.RoutingUserFollowed:
		return c.handleUserFollowed(ctx, ev)
	case domain.RoutingCommunityJoined:
		return c.handleCommunityJoined(ctx, ev)
	}

	r, ok := routes[ev.RoutingKey]
	if !ok {
		return nil
	}

	userID := stringField(ev.Body, "owner_id")
	actorID := stringField(ev.Body, "actor_id")
	actorName := stringField(ev.Body, "actor_name")
	referenceID := stringField(ev.Body, "post_id")

	if userID == "" || actorID == "" {
		return apperrors.InvalidArgument("event missing required actor/owner fields", nil)
	}

	_, err := c.notify.CreateAggregated(ctx, userID, referenceID, r.notificationType, renderLink(r.linkTemplate, ev.Body), actorID, actorName, r.verb)
	return err
}

// handleCommentReplied always creates a new row addressed to the
// parent comment's author, carrying an excerpt of the reply.
func (c *Consumer) handleCommentReplied(ctx context.Context, ev *domain.Event) error {
	userID := stringField(ev.Body, "owner_id")
	actorID := stringField(ev.Body, "actor_id")
	actorName := stringField(ev.Body, "actor_name")
	if userID == "" || actorID == "" {
		return apperrors.InvalidArgument("comment.replied event missing owner_id/actor_id", nil)
	}
	return c.notify.Create(ctx, &domain.Notification{
		UserID:           userID,
		NotificationType: "comment.replied",
		ReferenceID:      stringField(ev.Body, "comment_id"),
		ActorsCount:      1,
		LastActorID:      actorID,
		LastActorName:    actorName,
		BodyTemplate:     actorName + " replied: " + stringField(ev.Body, "excerpt"),
		LinkURL:          renderLink("/posts/{post_id}#comment-{comment_id}", ev.Body),
	})
}

// handleUserFollowed always creates a new row addressed to the
// followed user.
func (c *Consumer) handleUserFollowed(ctx context.Context, ev *domain.Event) error {
	userID := stringField(ev.Body, "followed_id")
	actorID := stringField(ev.Body, "actor_id")
	actorName := stringField(ev.Body, "actor_name")
	if userID == "" || actorID == "" {
		return apperrors.InvalidArgument("user.followed event missing followed_id/actor_id", nil)
	}
	return c.notify.Create(ctx, &domain.Notification{
		UserID:           userID,
		NotificationType: "user.followed",
		ReferenceID:      actorID,
		ActorsCount:      1,
		LastActorID:      actorID,
		LastActorName:    actorName,
		BodyTemplate:     actorName + " started following you",
		LinkURL:          renderLink("/users/{actor_id}", ev.Body),
	})
}

// handleCommunityJoined always creates a new row addressed to the
// joining user themselves, not a community owner.
func (c *Consumer) handleCommunityJoined(ctx context.Context, ev *domain.Event) error {
	userID := stringField(ev.Body, "actor_id")
	communityID := stringField(ev.Body, "community_id")
	if userID == "" || communityID == "" {
		return apperrors.InvalidArgument("community.joined event missing actor_id/community_id", nil)
	}
	communityName := stringField(ev.Body, "community_name")
	if communityName == "" {
		communityName = communityID
	}
	return c.notify.Create(ctx, &domain.Notification{
		UserID:           userID,
		NotificationType: "community.joined",
		ReferenceID:      communityID,
		ActorsCount:      1,
		LastActorID:      userID,
		LastActorName:    stringField(ev.Body, "actor_name"),
		BodyTemplate:     "You joined " + communityName,
		LinkURL:          renderLink("/communities/{community_id}", ev.Body),
	})
}

func (c *Consumer) handlePostCreated(ctx context.Context, ev *domain.Event) error {
	authorID := stringField(ev.Body, "actor_id")
	authorName := stringField(ev.Body, "actor_name")
	postID := stringField(ev.Body, "post_id")
	if authorID == "" || postID == "" {
		return apperrors.InvalidArgument("post.created event missing actor_id/post_id", nil)
	}
	if c.followers == nil {
		return nil
	}

	followerIDs, err := c.followers(ctx, authorID)
	if err != nil {
		return apperrors.Wrap(err, "failed to resolve followers")
	}
	if len(followerIDs) == 0 {
		return nil
	}

	ns := make([]*domain.Notification, 0, len(followerIDs))
	for _, uid := range followerIDs {
		ns = append(ns, &domain.Notification{
			UserID:           uid,
			NotificationType: "post.created",
			ReferenceID:      postID,
			ActorsCount:      1,
			LastActorID:      authorID,
			LastActorName:    authorName,
			BodyTemplate:     authorName + " posted something new",
			LinkURL:          renderLink("/posts/{post_id}", ev.Body),
		})
	}
	return c.notify.CreateMany(ctx, ns)
}

func (c *Consumer) handleViolation(ctx context.Context, ev *domain.Event) error {
	userID := stringField(ev.Body, "owner_id")
	reason := stringField(ev.Body, "reason")
	if userID == "" {
		return apperrors.InvalidArgument("violation.events missing owner_id", nil)
	}
	return c.notify.Create(ctx, &domain.Notification{
		UserID:           userID,
		NotificationType: "violation",
		BodyTemplate:     "Your stream was stopped: " + reason,
		ActorsCount:      1,
	})
}

func renderLink(tmpl string, body map[string]interface{}) string {
	out := tmpl
	for k, v := range body {
		if s, ok := v.(string); ok {
			out = strings.ReplaceAll(out, "{"+k+"}", s)
		}
	}
	return out
}

func decode(msg *messaging.Message) (*domain.Event, error) {
	var wire struct {
		RoutingKey string                 `json:"routing_key"`
		MessageID  string                 `json:"message_id"`
		Body       map[string]interface{} `json:"body"`
	}
	if err := json.Unmarshal(msg.Payload, &wire); err != nil {
		return nil, apperrors.InvalidArgument("failed to parse event payload", err)
	}
	if wire.RoutingKey == "" {
		wire.RoutingKey = msg.Topic
	}
	return &domain.Event{
		RoutingKey: domain.RoutingKey(wire.RoutingKey),
		MessageID:  wire.MessageID,
		Body:       wire.Body,
	}, nil
}

// isTransient classifies an error as worth retrying. Infrastructure
// failures (DB, cache) surface as apperrors.CodeInternal; invalid input
// and state violations are never retried.
func isTransient(err error) bool {
	switch apperrors.Code(err) {
	case apperrors.CodeInvalidArgument, apperrors.CodeForbidden, apperrors.CodeConflict:
		return false
	default:
		return true
	}
}
