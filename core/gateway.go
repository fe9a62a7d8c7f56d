package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway accepts real-time connections, runs each connection's state machine
// (connected, identified, closed) and demultiplexes inbound events to the
// delivery engine. Identity is fixed at accept time from the authenticated
// request; the user_connected event only activates the presence binding.
type Gateway struct {
	registry *PresenceRegistry
	delivery *DeliveryEngine
	context  context.Context
	connWg   *sync.WaitGroup
	logger   *slog.Logger
	upgrader websocket.Upgrader

	onUserOnline  func(context.Context, string)
	onUserOffline func(context.Context, string)

	WriteStreamSize int
}

type GatewayOption func(*Gateway)

func WithCheckOrigin(f func(r *http.Request) bool) GatewayOption {
	return func(g *Gateway) {
		g.upgrader.CheckOrigin = f
	}
}

func NewGateway(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger,
	registry *PresenceRegistry, delivery *DeliveryEngine, opts ...GatewayOption) *Gateway {

	g := &Gateway{
		registry:        registry,
		delivery:        delivery,
		context:         ctx,
		connWg:          wg,
		logger:          logger,
		upgrader:        defaultUpgrader,
		WriteStreamSize: 100,
		onUserOnline:    func(context.Context, string) {},
		onUserOffline:   func(context.Context, string) {},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnUserOnline registers a callback invoked when a user transitions from no
// binding to a bound connection.
func (g *Gateway) OnUserOnline(f func(context.Context, string)) {
	g.onUserOnline = f
}

// OnUserOffline registers a callback invoked when a user's bound connection
// disconnects.
func (g *Gateway) OnUserOffline(f func(context.Context, string)) {
	g.onUserOffline = f
}

// Accept upgrades the request to a websocket connection owned by username and
// starts its read and write loops. The connection starts anonymous with
// respect to presence: no binding exists until the client declares itself
// with a user_connected event.
func (g *Gateway) Accept(username string, w http.ResponseWriter, r *http.Request) error {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	c := &Conn{
		conn:        conn,
		gateway:     g,
		context:     g.context,
		username:    username,
		writeStream: make(chan *Event, g.WriteStreamSize),
		ticker:      time.NewTicker(pingPeriod),
		logger:      g.logger.With(slog.String("connection", username)),
	}

	g.connWg.Add(1)
	go func() {
		defer g.connWg.Done()
		c.readLoop()
	}()
	g.connWg.Add(1)
	go func() {
		defer g.connWg.Done()
		c.writeLoop()
	}()

	return nil
}

func (g *Gateway) dispatch(c *Conn, e *Event) {
	if c.State() == ConnClosed {
		return
	}
	switch e.Type {
	case EventUserConnected:
		g.handleIdentify(c, e)
	case EventPrivateMessage:
		g.handleSend(c, e)
	default:
		c.logger.Debug(fmt.Sprintf("unhandled event type: %s", e.Type))
	}
}

// handleIdentify binds the connection's authenticated identity in the
// presence registry. Re-declaring on an already identified connection simply
// rebinds. A client-supplied user ID that disagrees with the authenticated
// identity is ignored.
func (g *Gateway) handleIdentify(c *Conn, e *Event) {
	var payload IdentifyPayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			c.logger.Error(fmt.Sprintf("unmarshal identify payload: %v", err))
			return
		}
	}
	username := c.Username()
	if payload.UserID != "" && payload.UserID != username {
		c.logger.Warn(fmt.Sprintf("identify as %q ignored, connection belongs to %q",
			payload.UserID, username))
	}

	wasOnline := g.registry.Online(username)
	g.registry.Bind(username, c)
	c.identified()
	if !wasOnline {
		g.onUserOnline(g.context, username)
	}
}

func (g *Gateway) handleSend(c *Conn, e *Event) {
	if c.State() != ConnIdentified {
		g.ack(c, SendAckPayload{Success: false, Error: "not identified"})
		return
	}

	var payload SendMessagePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		g.ack(c, SendAckPayload{Success: false, Error: "malformed message"})
		return
	}

	// The sender is always the connection's bound identity.
	message, err := g.delivery.Send(g.context, c.Username(), payload.To, payload.Message)
	if err != nil {
		if errors.Is(err, ErrInvalidMessage) {
			g.ack(c, SendAckPayload{Success: false, Error: "invalid message"})
			return
		}
		c.logger.Error(fmt.Sprintf("send message: %v", err))
		g.ack(c, SendAckPayload{Success: false, Error: "failed to send message"})
		return
	}

	g.ack(c, SendAckPayload{Success: true, MessageID: message.ID})
}

func (g *Gateway) ack(c *Conn, payload SendAckPayload) {
	e, err := NewEvent(EventMessageSent, payload)
	if err != nil {
		c.logger.Error(fmt.Sprintf("ack event: %v", err))
		return
	}
	if err := c.Push(e); err != nil {
		c.logger.Error(fmt.Sprintf("push ack: %v", err))
	}
}

// handleDisconnect removes the connection's presence binding, if it still
// holds one, and closes the connection. A binding already overwritten by a
// newer connection for the same user is left untouched.
func (g *Gateway) handleDisconnect(c *Conn) {
	username, bound := g.registry.Unbind(c)
	c.close()
	if bound {
		g.onUserOffline(g.context, username)
	}
}
