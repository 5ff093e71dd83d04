// Package realtime is the live delivery core: it keeps one authenticated
// WebSocket per user, runs the per-connection protocol and fans chat
// messages, presence changes and read receipts out to connected clients.
package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket close codes used by the server.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	ClosePolicyViolation = websocket.ClosePolicyViolation
)

// maxCloseReason is the largest reason a close frame can carry (125-byte
// control payload minus the 2-byte code).
const maxCloseReason = 123

const maxFrameSize = 1 << 20

// ErrConnClosed is returned by Send once the connection has been closed.
var ErrConnClosed = errors.New("connection closed")

// Conn is one live client connection.
//
// Send and Close may be called from any goroutine. Read is only ever called
// by the goroutine that owns the connection.
type Conn interface {
	ID() string
	RemoteAddr() string
	Read() ([]byte, error)
	Send(ctx context.Context, data []byte) error
	Close(code int, reason string) error
	IsOpen() bool
}

// WSConn adapts a gorilla WebSocket to Conn. Writes are serialised and each
// is bounded by writeTimeout; a failed write closes the connection.
type WSConn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) *WSConn {
	ws.SetReadLimit(maxFrameSize)
	return &WSConn{
		id:           uuid.NewString(),
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *WSConn) IsOpen() bool { return !c.closed.Load() }

// Read returns the next text or binary frame payload.
func (c *WSConn) Read() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closed.Store(true)
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WSConn) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		c.abort()
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.abort()
		return err
	}
	return nil
}

// Close sends a close frame with code and reason, then drops the socket.
// Only the first call has any effect.
func (c *WSConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(code, TruncateReason(reason))
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
	})
	return err
}

// abort drops the socket after a failed write. Gorilla connections are
// unusable once a write has failed.
func (c *WSConn) abort() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.Close()
	})
}

// TruncateReason cuts reason to fit a close frame without splitting a rune.
func TruncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
