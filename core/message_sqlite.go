package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLiteMessageStore struct {
	db *sql.DB
}

func NewSQLiteMessageStore(db *sql.DB) *SQLiteMessageStore {
	return &SQLiteMessageStore{db: db}
}

func (s *SQLiteMessageStore) Append(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	message := &Message{
		ID:        uuid.New().String(),
		From:      input.From,
		To:        input.To,
		Content:   input.Content,
		Timestamp: time.Now().UTC(),
	}

	query := `
	INSERT INTO messages (id, from_user, to_user, content, timestamp)
	VALUES (@id, @from_user, @to_user, @content, @timestamp)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("id", message.ID),
		sql.Named("from_user", message.From),
		sql.Named("to_user", message.To),
		sql.Named("content", message.Content),
		sql.Named("timestamp", message.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert message): %w", err)
	}

	return message, nil
}

func (s *SQLiteMessageStore) ListByParticipant(ctx context.Context, username string) ([]Message, error) {
	// rowid breaks ties between equal timestamps so the order is stable
	// across calls and matches insertion order.
	query := `
	SELECT id, from_user, to_user, content, timestamp
	FROM messages
	WHERE from_user = @username OR to_user = @username
	ORDER BY timestamp ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("username", username))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SQLiteMessageStore) ListBetween(ctx context.Context, a, b string) ([]Message, error) {
	query := `
	SELECT id, from_user, to_user, content, timestamp
	FROM messages
	WHERE (from_user = @a AND to_user = @b) OR (from_user = @b AND to_user = @a)
	ORDER BY timestamp ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("a", a), sql.Named("b", b))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var message Message
		if err := rows.Scan(&message.ID, &message.From, &message.To,
			&message.Content, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return messages, nil
}
