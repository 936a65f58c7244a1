// Package router fans Notification Store writes out across every
// gateway process in the fleet, using Redis pub/sub as the transport so
// a user connected to one instance still receives pushes published by
// another.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "ws:user:"
	userChannelPattern = "ws:user:*"
	broadcastChannel  = "ws:broadcast"

	reconnectBase   = 500 * time.Millisecond
	reconnectCap    = 30 * time.Second
	reconnectJitter = 0.2
)

// UserHandler is invoked for every message published to a single user's
// channel, with the userID already stripped of its channel prefix.
type UserHandler func(ctx context.Context, userID string, payload []byte)

// BroadcastHandler is invoked for every message published to the shared
// broadcast channel.
type BroadcastHandler func(ctx context.Context, payload []byte)

// Router is both the publisher side (used by internal/notify) and the
// subscriber side (used by the gateway process) of cross-instance
// delivery.
type Router struct {
	client *redis.Client
}

func New(client *redis.Client) *Router {
	return &Router{client: client}
}

// PublishToUser implements notify.RealtimePublisher.
func (r *Router) PublishToUser(ctx context.Context, userID string, frame []byte) error {
	return r.client.Publish(ctx, userChannelPrefix+userID, frame).Err()
}

// PublishBroadcast fans a frame out to every connected gateway instance
// regardless of user.
func (r *Router) PublishBroadcast(ctx context.Context, frame []byte) error {
	return r.client.Publish(ctx, broadcastChannel, frame).Err()
}

// Run subscribes to the user-channel pattern and the broadcast channel
// and dispatches incoming messages until ctx is cancelled. On a
// subscription error it reconnects with exponential backoff (base 500ms,
// cap 30s, 20% jitter) rather than returning, since a transient Redis
// blip should not take the whole gateway process down.
func (r *Router) Run(ctx context.Context, onUser UserHandler, onBroadcast BroadcastHandler) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := r.runOnce(ctx, onUser, onBroadcast)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// Subscription ended cleanly (shouldn't happen outside cancellation);
			// still back off before retrying to avoid a hot loop.
			attempt = 0
		}

		delay := resilience.ExponentialBackoff(attempt, reconnectBase, reconnectCap, reconnectJitter)
		logger.L().WarnContext(ctx, "cross-instance router subscription lost, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		attempt++
	}
}

func (r *Router) runOnce(ctx context.Context, onUser UserHandler, onBroadcast BroadcastHandler) error {
	pubsub := r.client.PSubscribe(ctx, userChannelPattern)
	defer pubsub.Close()
	if err := pubsub.Subscribe(ctx, broadcastChannel); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Channel == broadcastChannel {
				onBroadcast(ctx, []byte(msg.Payload))
				continue
			}
			userID := strings.TrimPrefix(msg.Channel, userChannelPrefix)
			onUser(ctx, userID, []byte(msg.Payload))
		}
	}
}
