// Package history persists each chat's conversation log.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/jobrelay/internal/config"
	"github.com/memohai/jobrelay/internal/conversation"
)

// Store is a read-modify-write log keyed by chat id. Get on an unknown chat
// returns an empty slice. Callers serialize writers per chat with Locker.
type Store interface {
	Get(ctx context.Context, chatID string) ([]conversation.Message, error)
	Put(ctx context.Context, chatID string, msgs []conversation.Message) error
	Close() error
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, log *slog.Logger, cfg config.HistoryConfig) (Store, error) {
	if log == nil {
		log = slog.Default()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	log = log.With(slog.String("component", "history"), slog.String("backend", backend))
	switch backend {
	case "", config.HistoryMemory:
		log.Warn("using in-memory history; conversations are lost on restart")
		return NewMemoryStore(), nil
	case config.HistorySQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case config.HistoryPostgres:
		return OpenPostgres(ctx, log, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.Backend)
	}
}

// Append reads the chat's history, appends msgs and writes it back.
// Callers must hold the chat's lock.
func Append(ctx context.Context, store Store, chatID string, msgs ...conversation.Message) error {
	current, err := store.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}
	current = append(current, msgs...)
	if err := store.Put(ctx, chatID, current); err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	return nil
}
