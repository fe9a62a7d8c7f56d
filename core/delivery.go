package core

import (
	"context"
	"fmt"
	"log/slog"
)

// DeliveryEngine is the single state-transition point for an inbound send.
// It persists the message, pushes it to the recipient if one is bound, and
// returns the stored message to the caller. It keeps no state of its own.
type DeliveryEngine struct {
	store    MessageStore
	registry *PresenceRegistry
	logger   *slog.Logger
}

func NewDeliveryEngine(store MessageStore, registry *PresenceRegistry, logger *slog.Logger) *DeliveryEngine {
	return &DeliveryEngine{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Send validates and persists the message, then pushes it to the recipient's
// connection if the recipient is currently bound. Persistence failure is the
// only error: an offline recipient or a failed push degrades to store-only
// delivery, and the message stays retrievable through history.
func (d *DeliveryEngine) Send(ctx context.Context, from, to, content string) (*Message, error) {
	input := MessageCreateInput{From: from, To: to, Content: content}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	message, err := d.store.Append(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	handle, ok := d.registry.Lookup(to)
	if !ok {
		return message, nil
	}

	e, err := NewEvent(EventPrivateMessage, DeliverPayload{
		From:      message.From,
		Message:   message.Content,
		Timestamp: message.Timestamp,
	})
	if err != nil {
		d.logger.Error(fmt.Sprintf("deliver event: %v", err))
		return message, nil
	}
	if err := handle.Push(e); err != nil {
		// Fire-and-forget: a stale or saturated handle is not an error.
		d.logger.Debug(fmt.Sprintf("push to %s: %v", to, err))
	}

	return message, nil
}
