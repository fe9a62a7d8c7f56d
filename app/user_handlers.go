package snaptalk

import (
	"fmt"
	"net/http"

	"github.com/piyawat22/snaptalk/core"
)

type UserHandler struct {
	userStore core.UserStore
}

func NewUserHandler(userStore core.UserStore) *UserHandler {
	return &UserHandler{userStore: userStore}
}

func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)

	user, err := h.userStore.GetUserByUsername(r.Context(), session.Username)
	if err != nil {
		return fmt.Errorf("GetUserByUsername: %w", err)
	}
	if user == nil {
		return NewJsonError(http.StatusNotFound, "user not found")
	}

	return WriteJson(w, user, http.StatusOK)
}

func (h *UserHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query().Get("query")

	users, err := h.userStore.SearchUsers(r.Context(), query)
	if err != nil {
		return fmt.Errorf("SearchUsers: %w", err)
	}
	if users == nil {
		users = []core.UserWithoutSecrets{}
	}

	return WriteJson(w, users, http.StatusOK)
}
