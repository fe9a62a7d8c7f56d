package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDelivery(t *testing.T, store MessageStore, registry *PresenceRegistry) *DeliveryEngine {
	return NewDeliveryEngine(store, registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendDeliversToBoundRecipient(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()
	registry := NewPresenceRegistry()
	handle := &fakePusher{}
	registry.Bind("bob", handle)
	delivery := newTestDelivery(t, f.messageStore, registry)

	message, err := delivery.Send(f.ctx, "alice", "bob", "hi")

	require.Nil(t, err)
	require.NotNil(t, message)
	assert.NotEmpty(t, message.ID)

	events := handle.Events()
	require.Len(t, events, 1, "recipient should receive exactly one deliver event")
	assert.Equal(t, EventPrivateMessage, events[0].Type)

	var payload DeliverPayload
	require.Nil(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "alice", payload.From)
	assert.Equal(t, "hi", payload.Message)
	assert.Equal(t, message.Timestamp.Unix(), payload.Timestamp.Unix())
}

func TestSendOfflineRecipientStoreOnly(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()
	registry := NewPresenceRegistry()
	delivery := newTestDelivery(t, f.messageStore, registry)

	message, err := delivery.Send(f.ctx, "alice", "carol", "hi")

	require.Nil(t, err, "an offline recipient is not an error")
	require.NotNil(t, message)

	messages, err := f.messageStore.ListBetween(f.ctx, "alice", "carol")
	require.Nil(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, message.ID, messages[0].ID)
}

func TestSendInvalidMessage(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()
	registry := NewPresenceRegistry()
	handle := &fakePusher{}
	registry.Bind("bob", handle)
	delivery := newTestDelivery(t, f.messageStore, registry)

	for _, tc := range []struct{ from, to, content string }{
		{"", "bob", "hi"},
		{"alice", "", "hi"},
		{"alice", "bob", ""},
	} {
		message, err := delivery.Send(f.ctx, tc.from, tc.to, tc.content)
		require.NotNil(t, err)
		assert.ErrorIs(t, err, ErrInvalidMessage)
		assert.Nil(t, message)
	}

	assert.Empty(t, handle.Events(), "nothing should be pushed for invalid input")
	messages, err := f.messageStore.ListByParticipant(f.ctx, "alice")
	require.Nil(t, err)
	assert.Empty(t, messages, "nothing should be persisted for invalid input")
}

func TestSendPersistenceFailure(t *testing.T) {
	registry := NewPresenceRegistry()
	handle := &fakePusher{}
	registry.Bind("bob", handle)
	storeErr := errors.New("store unreachable")
	delivery := newTestDelivery(t, &failingMessageStore{err: storeErr}, registry)

	message, err := delivery.Send(context.Background(), "alice", "bob", "hi")

	require.NotNil(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrInvalidMessage)
	assert.Nil(t, message)
	assert.Empty(t, handle.Events(), "no push should be attempted after a failed append")
}

func TestSendPushFailureIsSilent(t *testing.T) {
	f := newStoreFixture(t)
	defer f.tearDown()
	registry := NewPresenceRegistry()
	handle := &fakePusher{err: ErrConnClosed}
	registry.Bind("bob", handle)
	delivery := newTestDelivery(t, f.messageStore, registry)

	message, err := delivery.Send(f.ctx, "alice", "bob", "hi")

	require.Nil(t, err, "a stale handle must not surface as a send failure")
	require.NotNil(t, message)

	messages, err := f.messageStore.ListBetween(f.ctx, "alice", "bob")
	require.Nil(t, err)
	require.Len(t, messages, 1, "the message stays durable when the push fails")
}
