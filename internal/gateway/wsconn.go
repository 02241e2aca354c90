package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pairbridge/gateway/internal/logx"
	"github.com/pairbridge/gateway/internal/protocol"
)

// wsConn adapts a websocket connection to the Conn interface. Writes go
// through a buffered channel drained by a single writer goroutine so frame
// handlers and event fan-out never block on the socket.
type wsConn struct {
	c      *websocket.Conn
	send   chan protocol.OutFrame
	ctx    context.Context
	cancel context.CancelFunc

	wmu sync.Mutex // serializes socket writes between writeLoop and SendClose

	mu     sync.Mutex
	closed bool
}

func newWSConn(ctx context.Context, c *websocket.Conn) *wsConn {
	ctx, cancel := context.WithCancel(ctx)
	w := &wsConn{c: c, send: make(chan protocol.OutFrame, 32), ctx: ctx, cancel: cancel}
	go w.writeLoop()
	return w
}

func (w *wsConn) writeLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case f := <-w.send:
			b, err := json.Marshal(f)
			if err != nil {
				logx.Log.Warn().Err(err).Str("op", f.Op).Msg("serialize frame")
				continue
			}
			w.wmu.Lock()
			err = w.c.Write(w.ctx, websocket.MessageText, b)
			w.wmu.Unlock()
			if err != nil {
				w.markClosed()
				return
			}
		}
	}
}

// Send queues a frame for delivery. A full buffer drops the frame rather than
// blocking; at-most-once delivery is the contract here.
func (w *wsConn) Send(f protocol.OutFrame) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()
	select {
	case w.send <- f:
		return true
	default:
		return false
	}
}

// SendClose writes f synchronously ahead of the queue, then closes the
// socket. Used for fatal errors that must precede closure.
func (w *wsConn) SendClose(f protocol.OutFrame, code int, reason string) {
	w.markClosed()
	w.cancel()
	if b, err := json.Marshal(f); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		w.wmu.Lock()
		_ = w.c.Write(ctx, websocket.MessageText, b)
		w.wmu.Unlock()
		cancel()
	}
	_ = w.c.Close(websocket.StatusCode(code), reason)
}

func (w *wsConn) Close(code int, reason string) {
	w.markClosed()
	w.cancel()
	_ = w.c.Close(websocket.StatusCode(code), reason)
}

func (w *wsConn) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

func (w *wsConn) markClosed() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
