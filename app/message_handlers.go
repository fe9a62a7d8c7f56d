package snaptalk

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/piyawat22/snaptalk/core"
)

type MessageHandler struct {
	messageStore core.MessageStore
}

func NewMessageHandler(messageStore core.MessageStore) *MessageHandler {
	return &MessageHandler{messageStore: messageStore}
}

// ListHistoryForUserHandler returns every message the user sent or received,
// in ascending timestamp order. Users can only read their own history.
func (h *MessageHandler) ListHistoryForUserHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	userID := chi.URLParam(r, "userID")

	if userID != session.Username {
		return NewJsonError(http.StatusForbidden, "cannot read another user's history")
	}

	messages, err := h.messageStore.ListByParticipant(r.Context(), userID)
	if err != nil {
		return fmt.Errorf("ListByParticipant: %w", err)
	}
	if messages == nil {
		messages = []core.Message{}
	}

	return WriteJson(w, messages, http.StatusOK)
}

type HistoryBetweenPayload struct {
	User1 string `json:"user1" validate:"required"`
	User2 string `json:"user2" validate:"required"`
}

// ListHistoryBetweenHandler returns every message exchanged between the pair
// in either direction, in ascending timestamp order. The requester must be
// one of the pair.
func (h *MessageHandler) ListHistoryBetweenHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)

	var payload HistoryBetweenPayload
	if err := DecodeJson(r.Body, &payload); err != nil {
		return err
	}
	defer r.Body.Close()
	if err := validate.Struct(&payload); err != nil {
		return NewJsonError(http.StatusBadRequest, FormatValidationErrors(err))
	}

	if !lo.Contains([]string{payload.User1, payload.User2}, session.Username) {
		return NewJsonError(http.StatusForbidden, "cannot read another user's history")
	}

	messages, err := h.messageStore.ListBetween(r.Context(), payload.User1, payload.User2)
	if err != nil {
		return fmt.Errorf("ListBetween: %w", err)
	}
	if messages == nil {
		messages = []core.Message{}
	}

	return WriteJson(w, messages, http.StatusOK)
}
