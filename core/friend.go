package core

import (
	"context"
	"errors"
)

var (
	ErrSelfFriendRequest      = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends         = errors.New("already friends")
	ErrDuplicateFriendRequest = errors.New("friend request already sent")
	ErrInvalidFriendRequest   = errors.New("no such friend request")
)

type FriendStore interface {
	// SendFriendRequest records a pending request from one user to another.
	// It fails with ErrInvalidUser if the target does not exist,
	// ErrSelfFriendRequest for self-requests, ErrAlreadyFriends if the pair
	// is already befriended, and ErrDuplicateFriendRequest if an identical
	// request is pending.
	SendFriendRequest(ctx context.Context, from, to string) error

	// ListFriendRequests returns the usernames with a pending request to
	// the user, oldest first.
	ListFriendRequests(ctx context.Context, username string) ([]string, error)

	// AcceptFriendRequest turns the pending request from `from` into a
	// mutual friendship. It fails with ErrInvalidFriendRequest if no such
	// request is pending.
	AcceptFriendRequest(ctx context.Context, username, from string) error

	// ListFriends returns the user's friends in ascending username order.
	ListFriends(ctx context.Context, username string) ([]string, error)
}
