package core

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var (
	// ErrInvalidMessage is returned when a message is missing a required field.
	ErrInvalidMessage = errors.New("invalid message")
)

// Message represents a private message exchanged between two users.
// Once stored, a message is never mutated or deleted.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageCreateInput represents the input for persisting a message.
// The ID and timestamp are assigned by the store.
type MessageCreateInput struct {
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// Validate validates the message input.
func (m *MessageCreateInput) Validate() error {
	if err := validate.Struct(m); err != nil {
		return ErrInvalidMessage
	}
	return nil
}

type MessageStore interface {
	// Append persists the message and returns it with the assigned ID and
	// server-side timestamp. The message is durable before Append returns.
	Append(ctx context.Context, input MessageCreateInput) (*Message, error)

	// ListByParticipant returns all messages where the user is the sender or
	// the recipient, ordered by ascending timestamp.
	ListByParticipant(ctx context.Context, username string) ([]Message, error)

	// ListBetween returns all messages exchanged between exactly this pair of
	// users in either direction, ordered by ascending timestamp.
	ListBetween(ctx context.Context, a, b string) ([]Message, error)
}
