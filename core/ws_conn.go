package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the lifecycle state of a connection.
type ConnState int

const (
	// ConnConnected is an accepted connection that has not declared an
	// identity yet.
	ConnConnected ConnState = iota
	// ConnIdentified is a connection bound to a user in the presence
	// registry.
	ConnIdentified
	// ConnClosed is terminal. No events are processed after it.
	ConnClosed
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var ErrConnClosed = errors.New("connection closed")

// Conn is a single real-time connection. The handle is valid only for the
// connection's lifetime; a new connection never resumes a prior session.
type Conn struct {
	conn        *websocket.Conn
	gateway     *Gateway
	context     context.Context
	writeStream chan *Event
	ticker      *time.Ticker
	logger      *slog.Logger

	mu       sync.Mutex
	state    ConnState
	username string
}

// Username returns the authenticated identity of the connection.
func (c *Conn) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Push queues the event for delivery to the peer. It never blocks: if the
// connection is closed or its write buffer is full the event is dropped and
// an error is returned for the caller to log.
func (c *Conn) Push(e *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ConnClosed {
		return ErrConnClosed
	}
	select {
	case c.writeStream <- e:
		return nil
	default:
		return fmt.Errorf("write stream full")
	}
}

func (c *Conn) identified() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ConnConnected {
		c.state = ConnIdentified
	}
}

// close marks the connection closed and signals the write loop to send a
// close frame. Safe to call more than once.
func (c *Conn) close() {
	c.mu.Lock()
	if c.state == ConnClosed {
		c.mu.Unlock()
		return
	}
	c.state = ConnClosed
	c.mu.Unlock()
	close(c.writeStream)
}

func (c *Conn) readLoop() {
	c.logger.Debug("read loop started")
	defer func() {
		c.gateway.handleDisconnect(c)
		c.conn.Close()
		c.logger.Debug("read loop stopped")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			c.logger.Error(err.Error())
			continue
		}

		c.logger.Debug(event.String())

		// Events are dispatched inline so per-connection order is
		// preserved. No ordering is guaranteed across connections.
		c.gateway.dispatch(c, &event)
	}
}

func (c *Conn) writeLoop() {
	c.logger.Debug("write loop started")
	var err error
	defer func() {
		c.ticker.Stop()
		if err != nil {
			c.conn.Close()
		}
		c.logger.Debug("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error(fmt.Sprintf("getting next writer: %v", err))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error(err.Error())
			}
			w.Close()
		case <-c.context.Done():
			return
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}
