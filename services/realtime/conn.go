package realtime

import (
	"errors"
	"sync"
	"time"

	"auction-live/utils"

	"github.com/gorilla/websocket"
)

var (
	ErrConnClosed   = errors.New("realtime: connection closed")
	ErrSlowConsumer = errors.New("realtime: send buffer full")
)

// maxMessageSize bounds what a client may send; the channel is read only
// for the identity claim.
const maxMessageSize = 4096

// wsConn adapts a websocket to registry.Conn. Outbound messages go through a
// bounded buffer drained by writePump so Send never blocks the publisher.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	opts Options

	mu     sync.Mutex
	closed bool
	send   chan []byte
	done   chan struct{}

	socketOnce sync.Once
}

func newWSConn(ws *websocket.Conn, opts Options) *wsConn {
	return &wsConn{
		id:   utils.GenerateID(),
		ws:   ws,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues msg for delivery. A connection whose buffer is full is marked
// closed and reported as a slow consumer; the socket itself is torn down by
// the write pump, never on the caller's goroutine.
func (c *wsConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
	}

	c.closed = true
	close(c.done)
	return ErrSlowConsumer
}

// stop marks the connection closed and releases both pumps
func (c *wsConn) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Close stops the pumps and closes the socket. Safe to call more than once.
// It may wait up to WriteTimeout on an unresponsive peer.
func (c *wsConn) Close() {
	c.stop()
	c.closeSocket()
}

func (c *wsConn) closeSocket() {
	c.socketOnce.Do(func() {
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteTimeout),
		)
		_ = c.ws.Close()
	})
}

// writePump drains the send buffer and keeps the peer alive with pings
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				utils.Debug("realtime: write failed", map[string]any{"conn_id": c.id, "error": err.Error()})
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump forwards client text frames to incoming until the peer goes away,
// then closes incoming.
func (c *wsConn) readPump(incoming chan<- []byte) {
	defer close(incoming)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				utils.Debug("realtime: read failed", map[string]any{"conn_id": c.id, "error": err.Error()})
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))

		select {
		case incoming <- msg:
		case <-c.done:
			return
		}
	}
}
