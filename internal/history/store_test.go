package history

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/jobrelay/internal/config"
	"github.com/memohai/jobrelay/internal/conversation"
)

// exerciseStore checks the round-trip contract every backend must meet.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, Append(ctx, store, "chat-1", conversation.UserMessage("hello")))
	require.NoError(t, Append(ctx, store, "chat-1",
		conversation.UserMessage("create a job"),
		conversation.Message{
			Role: conversation.RoleAssistant,
			ToolCalls: []conversation.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: conversation.ToolCallFunction{Name: "create_job", Arguments: `{"job_description":"x"}`},
			}},
		},
		conversation.ToolResultMessage("call_1", "create_job", `{"job_id":"abc"}`),
		conversation.AssistantMessage("done"),
	))

	got, err := store.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "create a job", got[1].Content)
	assert.Equal(t, "create_job", got[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_1", got[3].ToolCallID)
	assert.Equal(t, conversation.RoleTool, got[3].Role)
	assert.Equal(t, "done", got[4].Content)

	other, err := store.Get(ctx, "chat-2")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.Put(ctx, "chat-1", nil))
	got, err = store.Get(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "c", []conversation.Message{conversation.UserMessage("a")}))
	got, _ := store.Get(ctx, "c")
	got[0].Content = "mutated"
	again, _ := store.Get(ctx, "c")
	assert.Equal(t, "a", again[0].Content)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()

	dsn := "file:" + filepath.Join(t.TempDir(), "history.db")
	store, err := OpenSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}
	store, err := OpenPostgres(context.Background(), nil, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot open database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	for _, id := range []string{"unknown", "chat-1", "chat-2"} {
		require.NoError(t, store.Put(ctx, id, nil))
	}
	exerciseStore(t, store)
}

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgres://u:p@h/db"))
	assert.Equal(t, "pgx5://u@h/db?sslmode=disable", migrateURL("postgresql://u@h/db?sslmode=disable"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), nil, config.HistoryConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = Open(context.Background(), nil, config.HistoryConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestLockerSerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("chat")
			defer unlock()
			assert.NoError(t, Append(ctx, store, "chat", conversation.UserMessage("m")))
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Equal(t, 0, locker.size())
}

func TestLockerIndependentKeys(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	unlockA := locker.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locker.Lock("b")
		unlock()
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
}
