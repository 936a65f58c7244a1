// Package wsgateway implements the WebSocket gateway: connection upgrade,
// per-connection send-queue pumps, and the ConnectionManager that is the
// sole authority over connection lifecycle and graceful shutdown.
package wsgateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/social-eventfabric/realtime/pkg/logger"
	"github.com/gorilla/websocket"
)

// State is a position in a Connection's lifecycle. Transitions only move
// forward: Connected -> Draining -> Closed.
type State int32

const (
	StateConnected State = iota
	StateDraining
	StateClosed
)

// Params bundles the protocol parameters a Connection's pumps enforce.
type Params struct {
	SendQueueCapacity int
	ReadLimit         int64
	PingPeriod        time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
}

// Connection is one upgraded WebSocket with its send queue and pumps.
type Connection struct {
	UserID string

	conn   *websocket.Conn
	send   chan []byte
	params Params

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	readDone  chan struct{}
	writeDone chan struct{}

	onInbound func(ctx context.Context, c *Connection, payload []byte)
}

// NewConnection wraps conn. onInbound, if non-nil, is called with each
// inbound text frame (used by the chat room hub; the notification
// gateway's /ws endpoint has no inbound protocol and passes nil).
func NewConnection(parent context.Context, userID string, conn *websocket.Conn, params Params, onInbound func(context.Context, *Connection, []byte)) *Connection {
	ctx, cancel := context.WithCancel(parent)
	return &Connection{
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, params.SendQueueCapacity),
		params:    params,
		ctx:       ctx,
		cancel:    cancel,
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		onInbound: onInbound,
	}
}

func (c *Connection) State() State { return State(c.state.Load()) }

func (c *Connection) setState(s State) { c.state.Store(int32(s)) }

// Enqueue attempts a non-blocking send. A full queue means the
// connection is too slow to keep up and is dropped rather than allowed
// to back-pressure the sender; this is advisory delivery, not durable.
func (c *Connection) Enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		c.cancel()
		return false
	}
}

// Cancel tears down this connection's context, which the pumps observe
// and use to unwind.
func (c *Connection) Cancel() { c.cancel() }

// Run starts the read and write pumps and blocks until both exit. Call
// it in its own goroutine; ConnectionManager.RemoveAndWait cancels the
// connection and then waits for the write pump to exit.
func (c *Connection) Run() {
	c.setState(StateConnected)
	go c.writePump()
	c.readPump()
	<-c.writeDone
	c.setState(StateClosed)
}

func (c *Connection) readPump() {
	defer close(c.readDone)
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.params.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.params.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.params.PongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.L().DebugContext(c.ctx, "websocket read error", "user_id", c.UserID, "error", err)
			}
			return
		}
		if c.onInbound != nil {
			c.onInbound(c.ctx, c, payload)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.params.PingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writeDone)
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.setState(StateDraining)
			c.drainSendQueue()
			c.conn.SetWriteDeadline(time.Now().Add(c.params.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			c.conn.Close()
			<-c.readDone
			return

		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.params.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.params.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainSendQueue flushes any frames still queued at shutdown time so a
// connection that was about to receive a notification still gets it
// before the close frame, matching the graceful-shutdown scenario where
// queued frames must be delivered before GoingAway.
func (c *Connection) drainSendQueue() {
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.params.WriteWait))
			c.conn.WriteMessage(websocket.TextMessage, payload)
		default:
			return
		}
	}
}
