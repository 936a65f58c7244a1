// Package chatroom implements the livestream chat room hub: a per-stream
// set of WebSocket clients with throttled viewer-count broadcasts and a
// server-enforced chat protocol (truncation, per-connection rate limit).
package chatroom

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/social-eventfabric/realtime/pkg/api/ratelimit"
	"github.com/social-eventfabric/realtime/pkg/datastructures/set"
	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/social-eventfabric/realtime/pkg/validator"
)

// Sender is the subset of wsgateway.Connection the hub needs: a
// non-blocking enqueue onto the connection's send queue, and the ability
// to cancel it (tearing the connection down) on a protocol violation.
type Sender interface {
	Enqueue(payload []byte) bool
	Cancel()
}

// Client is one connected chat participant: a send-capable connection
// plus the display name stamped onto its outbound chat frames.
type Client struct {
	Conn     Sender
	UserID   string
	Username string
}

// room is the per-stream member set and throttle state. Created on first
// join, destroyed when empty.
type room struct {
	mu              sync.RWMutex
	streamID        string
	members         *set.Set[*Client]
	lastBroadcastAt time.Time
}

// Params bundles the protocol parameters the hub enforces.
type Params struct {
	ViewUpdateThrottle time.Duration
	MaxMessageChars    int
	RateLimitPerSecond int64
}

// Hub owns every active room and the shared rate limiter backing the
// per-connection CHAT throttle.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*room
	params   Params
	limiter  ratelimit.Limiter
	validate *validator.Validator
}

func NewHub(params Params, limiter ratelimit.Limiter) *Hub {
	return &Hub{rooms: make(map[string]*room), params: params, limiter: limiter, validate: validator.New()}
}

// Join adds c to streamID's room, creating it if necessary, sends c a
// JOINED frame, and triggers a throttled viewer-count broadcast.
func (h *Hub) Join(ctx context.Context, streamID string, c *Client) {
	r := h.roomFor(streamID, true)
	r.mu.Lock()
	r.members.Add(c)
	count := r.members.Len()
	r.mu.Unlock()

	sendFrame(c, JoinedFrame{Type: TypeJoined, StreamID: streamID, Count: count})
	h.broadcastViewUpdate(ctx, r)
}

// Leave removes c from streamID's room, deleting the room once empty, and
// triggers a throttled viewer-count broadcast plus an immediate LEFT
// announcement to the remaining members.
func (h *Hub) Leave(ctx context.Context, streamID string, c *Client) {
	r := h.roomFor(streamID, false)
	if r == nil {
		return
	}

	r.mu.Lock()
	r.members.Remove(c)
	empty := r.members.Len() == 0
	members := r.members.List()
	r.mu.Unlock()

	if empty {
		h.mu.Lock()
		delete(h.rooms, streamID)
		h.mu.Unlock()
	}

	left := LeftFrame{Type: TypeLeft, StreamID: streamID, UserID: c.UserID}
	for _, m := range members {
		sendFrame(m, left)
	}
	if !empty {
		h.broadcastViewUpdate(ctx, r)
	}
}

// HandleInbound parses one inbound text frame from c in streamID's room,
// enforcing the rate limit and the chat protocol. A rate-limit violation
// sends an ERROR frame and cancels the connection; the caller's pump loop
// exits once the connection's context is cancelled.
func (h *Hub) HandleInbound(ctx context.Context, streamID string, c *Client, payload []byte) {
	allowed, err := h.limiter.Allow(ctx, rateLimitKey(c), h.params.RateLimitPerSecond, time.Second)
	if err != nil {
		logger.L().WarnContext(ctx, "chat rate limiter unavailable, allowing frame", "error", err)
	} else if !allowed.Allowed {
		sendFrame(c, ErrorFrame{Type: TypeError, Message: "rate limit exceeded"})
		c.Conn.Cancel()
		return
	}

	var in InboundFrame
	if err := json.Unmarshal(payload, &in); err != nil {
		sendFrame(c, ErrorFrame{Type: TypeError, Message: "malformed frame"})
		return
	}
	if err := h.validate.ValidateStruct(&in); err != nil {
		sendFrame(c, ErrorFrame{Type: TypeError, Message: "invalid frame"})
		return
	}

	content := in.Content
	if runes := []rune(content); len(runes) > h.params.MaxMessageChars {
		content = string(runes[:h.params.MaxMessageChars])
	}

	out := ChatBroadcastFrame{
		Type:      TypeChatBroadcast,
		StreamID:  streamID,
		UserID:    c.UserID,
		Username:  c.Username,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	r := h.roomFor(streamID, false)
	if r == nil {
		return
	}
	r.mu.RLock()
	members := r.members.List()
	r.mu.RUnlock()
	for _, m := range members {
		sendFrame(m, out)
	}
}

func (h *Hub) roomFor(streamID string, createIfMissing bool) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[streamID]
	if !ok {
		if !createIfMissing {
			return nil
		}
		r = &room{streamID: streamID, members: set.New[*Client]()}
		h.rooms[streamID] = r
	}
	return r
}

// broadcastViewUpdate emits the room's current viewer count to every
// member, throttled to at most once per ViewUpdateThrottle regardless of
// how many Join/Leave calls land in that window.
func (h *Hub) broadcastViewUpdate(ctx context.Context, r *room) {
	r.mu.Lock()
	now := time.Now()
	if now.Sub(r.lastBroadcastAt) < h.params.ViewUpdateThrottle {
		r.mu.Unlock()
		return
	}
	r.lastBroadcastAt = now
	count := r.members.Len()
	members := r.members.List()
	r.mu.Unlock()

	frame := ViewUpdateFrame{Type: TypeViewUpdate, StreamID: r.streamID, Count: count}
	for _, m := range members {
		sendFrame(m, frame)
	}
}

// rateLimitKey is scoped to the connection, not the user: spec.md §4.7's
// 5 msg/s limit applies per connection, so one user open in two tabs gets
// two independent budgets.
func rateLimitKey(c *Client) string {
	return fmt.Sprintf("chat:conn:%p", c)
}

func sendFrame(c *Client, frame interface{}) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.L().Error("failed to encode chat frame", "error", err)
		return
	}
	c.Conn.Enqueue(payload)
}
