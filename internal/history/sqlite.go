package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/memohai/jobrelay/internal/conversation"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS chat_history (
	chat_id    TEXT PRIMARY KEY,
	messages   TEXT NOT NULL DEFAULT '[]',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chat_history: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, chatID string) ([]conversation.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT messages FROM chat_history WHERE chat_id = ?`, chatID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []conversation.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return decodeMessages([]byte(raw))
}

func (s *SQLiteStore) Put(ctx context.Context, chatID string, msgs []conversation.Message) error {
	data, err := json.Marshal(conversation.Clone(msgs))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO chat_history (chat_id, messages, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id) DO UPDATE SET messages = excluded.messages, updated_at = CURRENT_TIMESTAMP`,
		chatID, string(data))
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeMessages(raw []byte) ([]conversation.Message, error) {
	msgs := []conversation.Message{}
	if len(raw) == 0 {
		return msgs, nil
	}
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}
