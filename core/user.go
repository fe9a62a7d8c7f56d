package core

import (
	"context"
	"errors"
	"time"
)

type User struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Validate validates the user's fields for creation.
func (u *User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return ErrInvalidUser
	}
	return nil
}

type UserWithoutSecrets struct {
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	LastActive time.Time `json:"last_active"`
}

var (
	ErrConflictedUser = errors.New("user already exists")
	// ErrInvalidUser is returned when a user is not found or is invalid.
	ErrInvalidUser = errors.New("invalid user")
)

type UserStore interface {
	CreateUser(ctx context.Context, user User) error

	// GetUserByUsername returns the user or nil if no user exists with the
	// username.
	GetUserByUsername(ctx context.Context, username string) (*UserWithoutSecrets, error)

	ComparePassword(ctx context.Context, username, password string) (bool, error)

	// SearchUsers returns users whose username contains q, case-insensitively.
	SearchUsers(ctx context.Context, q string) ([]UserWithoutSecrets, error)

	// TouchLastActive sets the user's last active time to now.
	TouchLastActive(ctx context.Context, username string) error
}
