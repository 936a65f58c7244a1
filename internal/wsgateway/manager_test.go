package wsgateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		SendQueueCapacity: 256,
		ReadLimit:         4096,
		PingPeriod:        time.Hour,
		PongWait:          time.Hour,
		WriteWait:         time.Second,
	}
}

// dialConnection upgrades an httptest server request into a registered
// Connection and returns it plus the client-side socket, so tests can
// drive both ends of the pump pair.
func dialConnection(t *testing.T, manager *ConnectionManager, userID string) (*Connection, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		c := NewConnection(context.Background(), userID, sock, testParams(), nil)
		manager.Add(c)
		connCh <- c
		go c.Run()
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return <-connCh, client
}

func TestAddCountAndRemove(t *testing.T) {
	manager := NewConnectionManager()
	c1, _ := dialConnection(t, manager, "u1")
	c2, _ := dialConnection(t, manager, "u1")

	assert.EqualValues(t, 2, manager.Count())
	assert.Len(t, manager.ForUser("u1"), 2)

	manager.Remove(c1)
	assert.EqualValues(t, 1, manager.Count())

	manager.Remove(c2)
	assert.EqualValues(t, 0, manager.Count())
	assert.Empty(t, manager.ForUser("u1"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	manager := NewConnectionManager()
	c, _ := dialConnection(t, manager, "u1")

	manager.Remove(c)
	assert.EqualValues(t, 0, manager.Count())
	manager.Remove(c)
	assert.EqualValues(t, 0, manager.Count())
}

func TestGracefulShutdownDeliversQueuedFrameThenCloses(t *testing.T) {
	manager := NewConnectionManager()
	c1, client1 := dialConnection(t, manager, "u2")
	c2, client2 := dialConnection(t, manager, "u2")

	require.True(t, c1.Enqueue([]byte("hello-1")))
	require.True(t, c2.Enqueue([]byte("hello-2")))

	client1.SetReadDeadline(time.Now().Add(2 * time.Second))
	client2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg1, err := client1.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello-1", string(msg1))
	_, msg2, err := client2.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello-2", string(msg2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.Shutdown(ctx)

	assert.EqualValues(t, 0, manager.Count())

	client1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client1.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}
