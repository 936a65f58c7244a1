package chatroom

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorycache "github.com/social-eventfabric/realtime/pkg/cache/adapters/memory"
	"github.com/social-eventfabric/realtime/pkg/api/ratelimit"
)

func newTestClient(t *testing.T, userID string) (*Client, *fakeConn) {
	t.Helper()
	fc := newFakeConn(userID)
	return &Client{Conn: fc.AsConnection(), UserID: userID, Username: userID + "-name"}, fc
}

func newTestHub() *Hub {
	c := memorycache.New()
	limiter := ratelimit.New(c, ratelimit.StrategyFixedWindow)
	return NewHub(Params{
		ViewUpdateThrottle: 3 * time.Second,
		MaxMessageChars:    500,
		RateLimitPerSecond: 5,
	}, limiter)
}

func TestJoinSendsJoinedAndViewUpdate(t *testing.T) {
	hub := newTestHub()
	client, fc := newTestClient(t, "u1")

	hub.Join(context.Background(), "stream1", client)

	frames := fc.Decoded()
	require.Len(t, frames, 2)
	assert.Equal(t, TypeJoined, frames[0]["type"])
	assert.Equal(t, TypeViewUpdate, frames[1]["type"])
	assert.EqualValues(t, 1, frames[1]["count"])
}

func TestChatContentTruncatedAt500(t *testing.T) {
	hub := newTestHub()
	client, fc := newTestClient(t, "u1")
	hub.Join(context.Background(), "stream1", client)
	fc.Reset()

	long := strings.Repeat("x", 600)
	in, _ := json.Marshal(InboundFrame{Type: TypeChat, Content: long})
	hub.HandleInbound(context.Background(), "stream1", client, in)

	frames := fc.Decoded()
	require.Len(t, frames, 1)
	assert.Equal(t, TypeChatBroadcast, frames[0]["type"])
	assert.Len(t, frames[0]["content"], 500)
}

func TestRateLimitDisconnectsAfterSixth(t *testing.T) {
	hub := newTestHub()
	client, fc := newTestClient(t, "u1")
	hub.Join(context.Background(), "stream1", client)
	fc.Reset()

	frame, _ := json.Marshal(InboundFrame{Type: TypeChat, Content: "hi"})
	for i := 0; i < 5; i++ {
		hub.HandleInbound(context.Background(), "stream1", client, frame)
	}
	assert.False(t, fc.Cancelled())

	hub.HandleInbound(context.Background(), "stream1", client, frame)
	assert.True(t, fc.Cancelled())

	frames := fc.Decoded()
	last := frames[len(frames)-1]
	assert.Equal(t, TypeError, last["type"])
}

func TestViewUpdateThrottledAcrossChurn(t *testing.T) {
	hub := newTestHub()
	a, fa := newTestClient(t, "a")
	b, _ := newTestClient(t, "b")

	hub.Join(context.Background(), "stream1", a)
	fa.Reset()
	hub.Join(context.Background(), "stream1", b)
	hub.Leave(context.Background(), "stream1", b)
	hub.Join(context.Background(), "stream1", b)

	viewUpdates := 0
	for _, f := range fa.Decoded() {
		if f["type"] == TypeViewUpdate {
			viewUpdates++
		}
	}
	assert.LessOrEqual(t, viewUpdates, 1)
}
