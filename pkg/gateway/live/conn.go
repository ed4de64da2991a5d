package live

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// conn serializes writes to one WebSocket. gorilla/websocket allows a single
// concurrent writer, and the event pump, playback, and ping loop all write.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *conn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// WriteAudio sends a JSON header frame immediately followed by the binary
// payload, under one lock so no other frame lands in between.
func (c *conn) WriteAudio(header any, audio []byte) error {
	data, err := json.Marshal(header)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	deadline := time.Now().Add(c.writeTimeout)
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, audio)
}

func (c *conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	return c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout))
}

// Close sends a close frame once and tears down the socket. Safe to call
// from multiple goroutines.
func (c *conn) Close(code int, reason string) {
	if c.closed.Swap(true) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
	_ = c.ws.Close()
}
