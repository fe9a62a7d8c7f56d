package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

func (s *SQLiteUserStore) CreateUser(ctx context.Context, user User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	eu, err := s.GetUserByUsername(ctx, user.Username)
	if err != nil {
		return fmt.Errorf("checking if user exists: %w", err)
	}
	if eu != nil {
		return ErrConflictedUser
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password, last_active)
		 VALUES (@username, @email, @password, @last_active)`,
		sql.Named("username", user.Username),
		sql.Named("email", user.Email),
		sql.Named("password", string(hashed)),
		sql.Named("last_active", time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

func (s *SQLiteUserStore) GetUserByUsername(ctx context.Context, username string) (*UserWithoutSecrets, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT username, email, last_active FROM users WHERE username = ? LIMIT 1", username)

	user := new(UserWithoutSecrets)
	if err := row.Scan(&user.Username, &user.Email, &user.LastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	return user, nil
}

func (s *SQLiteUserStore) ComparePassword(ctx context.Context, username, password string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT password FROM users WHERE username = ? LIMIT 1", username)

	var storedPassword string
	if err := row.Scan(&storedPassword); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scanning password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedPassword), []byte(password)); err != nil {
		return false, nil
	}

	return true, nil
}

func (s *SQLiteUserStore) SearchUsers(ctx context.Context, q string) ([]UserWithoutSecrets, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, email, last_active FROM users
		 WHERE username LIKE @q COLLATE NOCASE
		 ORDER BY username ASC`,
		sql.Named("q", "%"+q+"%"))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var users []UserWithoutSecrets
	for rows.Next() {
		var user UserWithoutSecrets
		if err := rows.Scan(&user.Username, &user.Email, &user.LastActive); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return users, nil
}

func (s *SQLiteUserStore) TouchLastActive(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_active = @last_active WHERE username = @username",
		sql.Named("last_active", time.Now().UTC()),
		sql.Named("username", username))
	if err != nil {
		return fmt.Errorf("ExecContext(update last_active): %w", err)
	}
	return nil
}
