package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	store    *storeFixture
	registry *PresenceRegistry
	gateway  *Gateway
	server   *httptest.Server
	cancel   context.CancelFunc
	connWg   *sync.WaitGroup
	t        *testing.T

	mu      sync.Mutex
	online  []string
	offline []string
}

// newGatewayFixture runs a gateway behind a test server that authenticates
// connections from the user query parameter.
func newGatewayFixture(t *testing.T) *gatewayFixture {
	store := newStoreFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := NewPresenceRegistry()
	delivery := NewDeliveryEngine(store.messageStore, registry, logger)
	connWg := &sync.WaitGroup{}
	gateway := NewGateway(ctx, connWg, logger, registry, delivery)

	f := &gatewayFixture{
		store:    store,
		registry: registry,
		gateway:  gateway,
		cancel:   cancel,
		connWg:   connWg,
		t:        t,
	}
	gateway.OnUserOnline(func(_ context.Context, username string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.online = append(f.online, username)
	})
	gateway.OnUserOffline(func(_ context.Context, username string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.offline = append(f.offline, username)
	})

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := gateway.Accept(r.URL.Query().Get("user"), w, r); err != nil {
			t.Logf("accept: %v", err)
		}
	}))

	return f
}

func (f *gatewayFixture) tearDown() {
	f.server.Close()
	f.cancel()
	f.connWg.Wait()
	f.store.tearDown()
}

func (f *gatewayFixture) dial(username string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?user=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.Nil(f.t, err, "dialing as %s", username)
	return conn
}

func (f *gatewayFixture) onlineCallbacks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	online := make([]string, len(f.online))
	copy(online, f.online)
	return online
}

func (f *gatewayFixture) offlineCallbacks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	offline := make([]string, len(f.offline))
	copy(offline, f.offline)
	return offline
}

func writeEvent(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	e, err := NewEvent(eventType, payload)
	require.Nil(t, err)
	require.Nil(t, conn.WriteJSON(e))
}

func readEvent(t *testing.T, conn *websocket.Conn) *Event {
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e Event
	require.Nil(t, conn.ReadJSON(&e), "reading next event")
	return &e
}

func readAck(t *testing.T, conn *websocket.Conn) SendAckPayload {
	e := readEvent(t, conn)
	require.Equal(t, EventMessageSent, e.Type)
	var ack SendAckPayload
	require.Nil(t, json.Unmarshal(e.Payload, &ack))
	return ack
}

// identify declares the connection's identity and waits for the binding to
// take effect.
func (f *gatewayFixture) identify(t *testing.T, conn *websocket.Conn, username string) {
	writeEvent(t, conn, EventUserConnected, IdentifyPayload{UserID: username})
	require.Eventually(t, func() bool {
		return f.registry.Online(username)
	}, 2*time.Second, 10*time.Millisecond, "waiting for %s to come online", username)
}

func TestIdentifyBindsPresence(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	conn := f.dial("alice")
	defer conn.Close()

	assert.False(t, f.registry.Online("alice"), "no binding before user_connected")
	f.identify(t, conn, "alice")

	assert.Equal(t, []string{"alice"}, f.onlineCallbacks())

	t.Run("re-identify does not fire the online callback again", func(t *testing.T) {
		writeEvent(t, conn, EventUserConnected, IdentifyPayload{UserID: "alice"})
		// A send acknowledgment proves the second identify was processed.
		writeEvent(t, conn, EventPrivateMessage, SendMessagePayload{To: "bob", Message: "hi"})
		ack := readAck(t, conn)
		require.True(t, ack.Success)
		assert.Equal(t, []string{"alice"}, f.onlineCallbacks())
	})
}

func TestIdentifyIgnoresClientUserID(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	conn := f.dial("alice")
	defer conn.Close()

	writeEvent(t, conn, EventUserConnected, IdentifyPayload{UserID: "mallory"})
	require.Eventually(t, func() bool {
		return f.registry.Online("alice")
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.registry.Online("mallory"))
}

func TestDisconnectUnbinds(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	conn := f.dial("bob")
	f.identify(t, conn, "bob")

	conn.Close()
	require.Eventually(t, func() bool {
		return !f.registry.Online("bob")
	}, 2*time.Second, 10*time.Millisecond, "binding should be removed on disconnect")
	assert.Equal(t, []string{"bob"}, f.offlineCallbacks())
}

func TestSendDeliversAndAcks(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	sender := f.dial("alice")
	defer sender.Close()
	recipient := f.dial("bob")
	defer recipient.Close()
	f.identify(t, sender, "alice")
	f.identify(t, recipient, "bob")

	writeEvent(t, sender, EventPrivateMessage, SendMessagePayload{To: "bob", Message: "hello"})

	delivered := readEvent(t, recipient)
	require.Equal(t, EventPrivateMessage, delivered.Type)
	var payload DeliverPayload
	require.Nil(t, json.Unmarshal(delivered.Payload, &payload))
	assert.Equal(t, "alice", payload.From)
	assert.Equal(t, "hello", payload.Message)
	assert.False(t, payload.Timestamp.IsZero())

	ack := readAck(t, sender)
	assert.True(t, ack.Success)
	assert.NotEmpty(t, ack.MessageID)
	assert.Empty(t, ack.Error)

	messages, err := f.store.messageStore.ListBetween(f.store.ctx, "alice", "bob")
	require.Nil(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, ack.MessageID, messages[0].ID)
}

func TestSendIgnoresClientFrom(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	sender := f.dial("alice")
	defer sender.Close()
	f.identify(t, sender, "alice")

	writeEvent(t, sender, EventPrivateMessage,
		SendMessagePayload{To: "bob", Message: "hi", From: "mallory"})
	ack := readAck(t, sender)
	require.True(t, ack.Success)

	messages, err := f.store.messageStore.ListByParticipant(f.store.ctx, "alice")
	require.Nil(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].From, "the sender is the connection's identity")
}

func TestSendToOfflineRecipient(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	sender := f.dial("alice")
	defer sender.Close()
	f.identify(t, sender, "alice")

	writeEvent(t, sender, EventPrivateMessage, SendMessagePayload{To: "carol", Message: "hi"})
	ack := readAck(t, sender)
	assert.True(t, ack.Success, "an offline recipient still yields a success ack")
	assert.NotEmpty(t, ack.MessageID)

	messages, err := f.store.messageStore.ListBetween(f.store.ctx, "alice", "carol")
	require.Nil(t, err)
	require.Len(t, messages, 1)
}

func TestSendBeforeIdentify(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	conn := f.dial("alice")
	defer conn.Close()

	writeEvent(t, conn, EventPrivateMessage, SendMessagePayload{To: "bob", Message: "hi"})
	ack := readAck(t, conn)
	assert.False(t, ack.Success)
	assert.Equal(t, "not identified", ack.Error)

	messages, err := f.store.messageStore.ListByParticipant(f.store.ctx, "alice")
	require.Nil(t, err)
	assert.Empty(t, messages, "unidentified sends must not be persisted")
}

func TestSendEmptyMessage(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	sender := f.dial("alice")
	defer sender.Close()
	f.identify(t, sender, "alice")

	writeEvent(t, sender, EventPrivateMessage, SendMessagePayload{To: "bob", Message: ""})
	ack := readAck(t, sender)
	assert.False(t, ack.Success)
	assert.Equal(t, "invalid message", ack.Error)
	assert.Empty(t, ack.MessageID)
}

func TestRebindDeliversToNewestConnection(t *testing.T) {
	f := newGatewayFixture(t)
	defer f.tearDown()

	first := f.dial("bob")
	f.identify(t, first, "bob")
	firstHandle, ok := f.registry.Lookup("bob")
	require.True(t, ok)

	second := f.dial("bob")
	defer second.Close()
	writeEvent(t, second, EventUserConnected, IdentifyPayload{UserID: "bob"})
	require.Eventually(t, func() bool {
		handle, ok := f.registry.Lookup("bob")
		return ok && handle != firstHandle
	}, 2*time.Second, 10*time.Millisecond, "waiting for the newer connection to take over")

	sender := f.dial("alice")
	defer sender.Close()
	f.identify(t, sender, "alice")

	writeEvent(t, sender, EventPrivateMessage, SendMessagePayload{To: "bob", Message: "hi"})
	require.True(t, readAck(t, sender).Success)

	delivered := readEvent(t, second)
	assert.Equal(t, EventPrivateMessage, delivered.Type)

	first.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray Event
	err := first.ReadJSON(&stray)
	require.NotNil(t, err, "the overwritten connection must not receive the message")

	t.Run("closing the overwritten connection keeps the binding", func(t *testing.T) {
		first.Close()
		writeEvent(t, sender, EventPrivateMessage, SendMessagePayload{To: "bob", Message: "still here?"})
		require.True(t, readAck(t, sender).Success)

		delivered := readEvent(t, second)
		var payload DeliverPayload
		require.Nil(t, json.Unmarshal(delivered.Payload, &payload))
		assert.Equal(t, "still here?", payload.Message)
		assert.True(t, f.registry.Online("bob"))
	})
}
