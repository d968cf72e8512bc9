package llm

import (
	"context"
	"errors"

	"github.com/memohai/jobrelay/internal/conversation"
)

var (
	ErrToolLoopExceeded = errors.New("tool loop exceeded max iterations")
	ErrEmptyResponse    = errors.New("model returned an empty response")
)

// ToolDescriptor describes a tool to the model.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ChatRequest is one model round-trip. Messages never include the system prompt.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []conversation.Message
	Tools     []ToolDescriptor
	MaxTokens int64
}

// Response is the assistant turn produced by a provider.
type Response struct {
	Content    string
	ToolCalls  []conversation.ToolCall
	StopReason string
}

// Provider is a chat-completion backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (Response, error)
}
