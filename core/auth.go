package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Session struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AuthStore interface {
	// NewSession verifies the credentials and returns a signed session.
	// It fails with ErrBadCredentials if the user does not exist or the
	// password does not match.
	NewSession(ctx context.Context, username, password string) (*Session, error)

	// Session verifies the token and returns the session it represents.
	// It fails with ErrUnauthenticated for expired or invalid tokens.
	Session(ctx context.Context, token string) (*Session, error)
}

// TokenAuth is a stateless AuthStore backed by signed JWTs.
type TokenAuth struct {
	userStore UserStore
	secret    []byte
	tokenExp  time.Duration
}

type AuthOption func(*TokenAuth)

func WithTokenExp(exp time.Duration) AuthOption {
	return func(a *TokenAuth) {
		a.tokenExp = exp
	}
}

func NewTokenAuth(userStore UserStore, secret []byte, opts ...AuthOption) *TokenAuth {
	auth := &TokenAuth{
		userStore: userStore,
		secret:    secret,
		tokenExp:  time.Hour * 24,
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth
}

func (a *TokenAuth) NewSession(ctx context.Context, username, password string) (*Session, error) {
	user, err := a.userStore.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	if user == nil {
		return nil, ErrBadCredentials
	}

	ok, err := a.userStore.ComparePassword(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, ErrBadCredentials
	}

	token, exp, err := NewToken(username, a.tokenExp, a.secret)
	if err != nil {
		return nil, fmt.Errorf("creating token: %w", err)
	}

	if err := a.userStore.TouchLastActive(ctx, username); err != nil {
		return nil, fmt.Errorf("touch last active: %w", err)
	}

	return &Session{Username: username, Token: token, ExpiresAt: exp}, nil
}

func (a *TokenAuth) Session(ctx context.Context, token string) (*Session, error) {
	claims, err := VerifyToken(token, a.secret)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return &Session{
		Username:  claims.Username,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
