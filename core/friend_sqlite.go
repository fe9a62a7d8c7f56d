package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SQLiteFriendStore struct {
	db        *sql.DB
	userStore UserStore
}

func NewSQLiteFriendStore(db *sql.DB, userStore UserStore) *SQLiteFriendStore {
	return &SQLiteFriendStore{db: db, userStore: userStore}
}

func (s *SQLiteFriendStore) SendFriendRequest(ctx context.Context, from, to string) error {
	if from == to {
		return ErrSelfFriendRequest
	}

	target, err := s.userStore.GetUserByUsername(ctx, to)
	if err != nil {
		return fmt.Errorf("GetUserByUsername: %w", err)
	}
	if target == nil {
		return ErrInvalidUser
	}

	friends, err := s.areFriends(ctx, from, to)
	if err != nil {
		return err
	}
	if friends {
		return ErrAlreadyFriends
	}

	pending, err := s.requestPending(ctx, from, to)
	if err != nil {
		return err
	}
	if pending {
		return ErrDuplicateFriendRequest
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO friend_requests (from_user, to_user, created_at)
		 VALUES (@from_user, @to_user, @created_at)`,
		sql.Named("from_user", from), sql.Named("to_user", to),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("ExecContext(insert friend_request): %w", err)
	}
	return nil
}

func (s *SQLiteFriendStore) ListFriendRequests(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_user FROM friend_requests
		 WHERE to_user = @to_user
		 ORDER BY created_at ASC, rowid ASC`,
		sql.Named("to_user", username))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	return scanUsernames(rows)
}

func (s *SQLiteFriendStore) AcceptFriendRequest(ctx context.Context, username, from string) error {
	pending, err := s.requestPending(ctx, from, username)
	if err != nil {
		return err
	}
	if !pending {
		return ErrInvalidFriendRequest
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM friend_requests WHERE from_user = @from_user AND to_user = @to_user",
		sql.Named("from_user", from), sql.Named("to_user", username))
	if err != nil {
		return fmt.Errorf("ExecContext(delete friend_request): %w", err)
	}

	// Friendship is stored as one row per direction.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO friends (username, friend) VALUES (@a, @b), (@b, @a)
		 ON CONFLICT DO NOTHING`,
		sql.Named("a", username), sql.Named("b", from))
	if err != nil {
		return fmt.Errorf("ExecContext(insert friends): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteFriendStore) ListFriends(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT friend FROM friends
		 WHERE username = @username
		 ORDER BY friend ASC`,
		sql.Named("username", username))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	return scanUsernames(rows)
}

func (s *SQLiteFriendStore) areFriends(ctx context.Context, a, b string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM friends WHERE username = @a AND friend = @b",
		sql.Named("a", a), sql.Named("b", b))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scanning count: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteFriendStore) requestPending(ctx context.Context, from, to string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM friend_requests WHERE from_user = @from_user AND to_user = @to_user",
		sql.Named("from_user", from), sql.Named("to_user", to))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scanning count: %w", err)
	}
	return count > 0, nil
}

func scanUsernames(rows *sql.Rows) ([]string, error) {
	var usernames []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		usernames = append(usernames, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return usernames, nil
}
