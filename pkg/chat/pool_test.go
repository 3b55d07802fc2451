package chat

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/idrissimart/souk/pkg/auth"
)

// stubConn is an in-memory Conn for tests. Reads block on a channel; writes
// are captured for inspection.
type stubConn struct {
	in        chan []byte
	mu        sync.Mutex
	writes    [][]byte
	failWrite bool
	closed    chan struct{}
	closeOnce sync.Once
}

func newStubConn() *stubConn {
	return &stubConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *stubConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return 1, b, nil
	case <-c.closed:
		return 0, nil, errors.New("closed")
	}
}

func (c *stubConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("write failed")
	}
	cp := append([]byte(nil), data...)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *stubConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *stubConn) send(t *testing.T, frame any) {
	t.Helper()
	b, err := json.Marshal(frame)
	require.NoError(t, err)
	c.in <- b
}

func (c *stubConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *stubConn) framesOfType(t *testing.T, frameType string) []map[string]any {
	t.Helper()
	out := []map[string]any{}
	for _, w := range c.written() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(w, &m))
		if m["type"] == frameType {
			out = append(out, m)
		}
	}
	return out
}

func TestPoolBroadcastExceptSkipsOrigin(t *testing.T) {
	pool := NewConnectionPool("r1")
	a, b := newStubConn(), newStubConn()
	pool.Add("conn-a", a, auth.Identity{ID: "u1"})
	pool.Add("conn-b", b, auth.Identity{ID: "u2"})

	pool.BroadcastExcept("conn-a", []byte(`{"type":"typing"}`))
	require.Empty(t, a.written())
	require.Len(t, b.written(), 1)

	pool.Broadcast([]byte(`{"type":"message"}`))
	require.Len(t, a.written(), 1)
	require.Len(t, b.written(), 2)
}

func TestPoolDropsConnectionOnWriteFailure(t *testing.T) {
	pool := NewConnectionPool("r1")
	bad := newStubConn()
	bad.failWrite = true
	good := newStubConn()
	pool.Add("bad", bad, auth.Identity{ID: "u1"})
	pool.Add("good", good, auth.Identity{ID: "u2"})

	pool.Broadcast([]byte(`x`))
	require.Equal(t, 1, pool.Count())
	require.Len(t, good.written(), 1)
}

func TestPoolSendToUnknownIsNoop(t *testing.T) {
	pool := NewConnectionPool("r1")
	pool.SendTo("missing", []byte(`x`))
	require.Equal(t, 0, pool.Count())
}

func TestPoolCloseAll(t *testing.T) {
	pool := NewConnectionPool("r1")
	a := newStubConn()
	pool.Add("a", a, auth.Identity{})
	pool.CloseAll()
	require.Equal(t, 0, pool.Count())
	select {
	case <-a.closed:
	default:
		t.Fatal("connection not closed")
	}
}
