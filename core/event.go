package core

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Wire event types. The inbound and outbound message events intentionally
// share the same name: the server relays a private message to the recipient
// under the type it arrived with.
const (
	// EventUserConnected binds the connection's identity to the presence
	// registry. Client to server, no response.
	EventUserConnected = "user_connected"
	// EventPrivateMessage carries a message to send (client to server) or a
	// delivered message (server to recipient).
	EventPrivateMessage = "private_message"
	// EventMessageSent acknowledges a send to the sender.
	EventMessageSent = "message_sent"
	// EventUserOnline and EventUserOffline notify a user's friends of
	// presence changes.
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

// Event is the envelope for every frame exchanged over a connection.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(t string, payload any) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Payload.Size: %d}", e.Type, len(e.Payload))
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// IdentifyPayload declares the identity of the connection. The user ID is
// advisory: the binding always uses the identity the connection authenticated
// with, never client-supplied data.
type IdentifyPayload struct {
	UserID string `json:"user_id"`
}

// SendMessagePayload is the inbound private_message payload. From is accepted
// for wire compatibility but ignored; the sender is the connection's bound
// identity.
type SendMessagePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
}

// DeliverPayload is the outbound private_message payload pushed to the
// recipient's connection.
type DeliverPayload struct {
	From      string    `json:"from"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SendAckPayload is the message_sent acknowledgment returned to the sender.
type SendAckPayload struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PresencePayload is the user_online / user_offline payload.
type PresencePayload struct {
	Username string `json:"username"`
}
