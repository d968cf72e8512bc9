package history

import (
	"context"
	"sync"

	"github.com/memohai/jobrelay/internal/conversation"
)

type MemoryStore struct {
	mu    sync.RWMutex
	chats map[string][]conversation.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[string][]conversation.Message)}
}

func (s *MemoryStore) Get(_ context.Context, chatID string) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conversation.Clone(s.chats[chatID]), nil
}

func (s *MemoryStore) Put(_ context.Context, chatID string, msgs []conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = conversation.Clone(msgs)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
