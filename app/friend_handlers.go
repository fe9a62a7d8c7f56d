package snaptalk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/piyawat22/snaptalk/core"
)

type FriendHandler struct {
	friendStore core.FriendStore
}

func NewFriendHandler(friendStore core.FriendStore) *FriendHandler {
	return &FriendHandler{friendStore: friendStore}
}

type FriendRequestPayload struct {
	Username string `json:"username" validate:"required"`
}

func (h *FriendHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)

	var payload FriendRequestPayload
	if err := DecodeJson(r.Body, &payload); err != nil {
		return err
	}
	defer r.Body.Close()
	if err := validate.Struct(&payload); err != nil {
		return NewJsonError(http.StatusBadRequest, FormatValidationErrors(err))
	}

	err := h.friendStore.SendFriendRequest(r.Context(), session.Username, payload.Username)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidUser):
			return NewJsonError(http.StatusNotFound, "user not found")
		case errors.Is(err, core.ErrSelfFriendRequest),
			errors.Is(err, core.ErrAlreadyFriends),
			errors.Is(err, core.ErrDuplicateFriendRequest):
			return NewJsonError(http.StatusBadRequest, err.Error())
		}
		return fmt.Errorf("SendFriendRequest: %w", err)
	}

	return WriteJson(w, map[string]string{"message": "friend request sent"}, http.StatusOK)
}

func (h *FriendHandler) ListFriendRequestsHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)

	requests, err := h.friendStore.ListFriendRequests(r.Context(), session.Username)
	if err != nil {
		return fmt.Errorf("ListFriendRequests: %w", err)
	}
	if requests == nil {
		requests = []string{}
	}

	return WriteJson(w, map[string][]string{"receivedRequests": requests}, http.StatusOK)
}

func (h *FriendHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)

	var payload FriendRequestPayload
	if err := DecodeJson(r.Body, &payload); err != nil {
		return err
	}
	defer r.Body.Close()
	if err := validate.Struct(&payload); err != nil {
		return NewJsonError(http.StatusBadRequest, FormatValidationErrors(err))
	}

	err := h.friendStore.AcceptFriendRequest(r.Context(), session.Username, payload.Username)
	if err != nil {
		if errors.Is(err, core.ErrInvalidFriendRequest) {
			return NewJsonError(http.StatusNotFound, err.Error())
		}
		return fmt.Errorf("AcceptFriendRequest: %w", err)
	}

	return WriteJson(w, map[string]string{"message": "friend request accepted"}, http.StatusOK)
}

func (h *FriendHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)

	friends, err := h.friendStore.ListFriends(r.Context(), session.Username)
	if err != nil {
		return fmt.Errorf("ListFriends: %w", err)
	}
	if friends == nil {
		friends = []string{}
	}

	return WriteJson(w, map[string][]string{"friends": friends}, http.StatusOK)
}
