package broadcast

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type controlFrame struct {
	messageType int
	data        []byte
}

// fakeConn is an in-memory Conn. Ping frames pushed to inbound invoke the ping
// handler from ReadMessage, the same way gorilla dispatches control frames.
type fakeConn struct {
	inbound   chan inboundFrame
	frames    chan []byte
	controls  chan controlFrame
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	pingHandler func(string) error
	writeErr    error
	controlErr  error
	writeGate   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan inboundFrame, 16),
		frames:   make(chan []byte, 2048),
		controls: make(chan controlFrame, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		select {
		case f := <-c.inbound:
			if f.err != nil {
				return 0, nil, f.err
			}
			switch f.messageType {
			case ws.PingMessage:
				c.mu.Lock()
				h := c.pingHandler
				c.mu.Unlock()
				if h != nil {
					if err := h(string(f.data)); err != nil {
						return 0, nil, err
					}
				}
				continue
			case ws.CloseMessage:
				return 0, nil, &ws.CloseError{Code: ws.CloseNormalClosure}
			}
			return f.messageType, f.data, nil
		case <-c.closed:
			return 0, nil, net.ErrClosed
		}
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	gate, writeErr := c.writeGate, c.writeErr
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-c.closed:
			return net.ErrClosed
		}
	}
	if writeErr != nil {
		return writeErr
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.frames <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	controlErr := c.controlErr
	c.mu.Unlock()
	if controlErr != nil {
		return controlErr
	}
	select {
	case c.controls <- controlFrame{messageType: messageType, data: append([]byte(nil), data...)}:
	default:
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPingHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingHandler = h
}

func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) setControlErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlErr = err
}

func (c *fakeConn) setWriteGate(gate chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeGate = gate
}

func expectFrame(t *testing.T, c *fakeConn) []byte {
	t.Helper()
	select {
	case frame := <-c.frames:
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func expectNoFrame(t *testing.T, c *fakeConn, wait time.Duration) {
	t.Helper()
	select {
	case frame := <-c.frames:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(wait):
	}
}

func expectControl(t *testing.T, c *fakeConn, messageType int) controlFrame {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case f := <-c.controls:
			if f.messageType == messageType {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for control frame %d", messageType)
			return controlFrame{}
		}
	}
}

func waitDone(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber %d did not shut down", sub.ID())
	}
}

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn := <-ready:
		return serverConn, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of websocket")
		return nil, nil
	}
}
