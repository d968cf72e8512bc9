package history

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/jobrelay/internal/conversation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres migrates the schema and connects a pool to dsn.
func OpenPostgres(ctx context.Context, log *slog.Logger, dsn string) (*PostgresStore, error) {
	if err := migratePostgres(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if log != nil {
		log.Info("postgres history ready")
	}
	return &PostgresStore{pool: pool}, nil
}

func migratePostgres(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a libpq-style URL to the scheme registered by the pgx/v5 migrate driver.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func (s *PostgresStore) Get(ctx context.Context, chatID string) ([]conversation.Message, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT messages FROM chat_history WHERE chat_id = $1`, chatID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []conversation.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return decodeMessages(raw)
}

func (s *PostgresStore) Put(ctx context.Context, chatID string, msgs []conversation.Message) error {
	data, err := json.Marshal(conversation.Clone(msgs))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO chat_history (chat_id, messages, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (chat_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = now()`,
		chatID, string(data))
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
