// Package agent runs one conversational turn per inbound chat message.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/jobrelay/internal/conversation"
	"github.com/memohai/jobrelay/internal/history"
	"github.com/memohai/jobrelay/internal/llm"
)

const ApologyText = "Sorry, I encountered an error processing your message."

// Chatter runs the tool-use loop for one user turn.
type Chatter interface {
	Chat(ctx context.Context, history []conversation.Message, text string) (string, []conversation.Message, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
	StartTyping(ctx context.Context, chatID string) (stop func())
}

type Loop struct {
	logger    *slog.Logger
	chatter   Chatter
	messenger Messenger
	store     history.Store
	locker    *history.Locker
}

func New(log *slog.Logger, chatter Chatter, messenger Messenger, store history.Store, locker *history.Locker) *Loop {
	if log == nil {
		log = slog.Default()
	}
	if locker == nil {
		locker = history.NewLocker()
	}
	return &Loop{
		logger:    log.With(slog.String("component", "agent")),
		chatter:   chatter,
		messenger: messenger,
		store:     store,
		locker:    locker,
	}
}

// HandleMessage answers text in chatID. It never returns an error: failures
// are logged and the chat gets an apology instead of a reply.
func (l *Loop) HandleMessage(ctx context.Context, chatID, text string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("agent turn panicked", slog.String("chat_id", chatID), slog.Any("panic", r))
			l.apologize(ctx, chatID)
		}
	}()
	if err := l.turn(ctx, chatID, text); err != nil {
		l.logger.Error("agent turn failed", slog.String("chat_id", chatID), slog.Any("error", err))
		l.apologize(ctx, chatID)
	}
}

func (l *Loop) turn(ctx context.Context, chatID, text string) error {
	unlock := l.locker.Lock(chatID)
	defer unlock()

	stopTyping := l.messenger.StartTyping(ctx, chatID)
	defer stopTyping()

	msgs, err := l.store.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}
	reply, updated, err := l.chatter.Chat(ctx, msgs, text)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return llm.ErrEmptyResponse
	}
	if err := l.store.Put(ctx, chatID, updated); err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	stopTyping()
	if err := l.messenger.SendMessage(ctx, chatID, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	l.logger.Info("agent replied", slog.String("chat_id", chatID), slog.Int("history_len", len(updated)))
	return nil
}

func (l *Loop) apologize(ctx context.Context, chatID string) {
	if err := l.messenger.SendMessage(ctx, chatID, ApologyText); err != nil {
		l.logger.Warn("send apology failed", slog.String("chat_id", chatID), slog.Any("error", err))
	}
}
