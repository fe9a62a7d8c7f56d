package snaptalk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/piyawat22/snaptalk/core"
)

type AuthHandler struct {
	userStore core.UserStore
	authStore core.AuthStore
}

func NewAuthHandler(userStore core.UserStore, authStore core.AuthStore) *AuthHandler {
	return &AuthHandler{userStore: userStore, authStore: authStore}
}

type RegisterPayload struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) error {
	var payload RegisterPayload
	if err := DecodeJson(r.Body, &payload); err != nil {
		return err
	}
	defer r.Body.Close()

	if err := validate.Struct(&payload); err != nil {
		return NewJsonError(http.StatusBadRequest, FormatValidationErrors(err))
	}

	err := h.userStore.CreateUser(r.Context(), core.User{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		if errors.Is(err, core.ErrConflictedUser) {
			return NewJsonError(http.StatusConflict, err.Error())
		}
		return fmt.Errorf("CreateUser: %w", err)
	}

	return WriteJson(w, map[string]string{"message": "user registered"}, http.StatusCreated)
}

func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) error {
	var payload LoginPayload
	if err := DecodeJson(r.Body, &payload); err != nil {
		return err
	}
	defer r.Body.Close()

	session, err := h.authStore.NewSession(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, core.ErrBadCredentials) {
			return NewJsonError(http.StatusUnauthorized, err.Error())
		}
		return fmt.Errorf("NewSession: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Path:     "/",
	})

	return WriteJson(w, session, http.StatusOK)
}
