package chatroom

import (
	"encoding/json"
	"sync"
)

// fakeConn is a test double for wsgateway.Connection that records every
// enqueued frame instead of writing to a real socket.
type fakeConn struct {
	mu        sync.Mutex
	userID    string
	frames    [][]byte
	cancelled bool
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{userID: userID}
}

func (f *fakeConn) AsConnection() Sender { return f }

func (f *fakeConn) Enqueue(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, payload)
	return true
}

func (f *fakeConn) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

func (f *fakeConn) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeConn) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func (f *fakeConn) Decoded() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.frames))
	for _, raw := range f.frames {
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}
