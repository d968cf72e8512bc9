package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/jobrelay/internal/config"
	"github.com/memohai/jobrelay/internal/conversation"
	"github.com/memohai/jobrelay/internal/prune"
)

// SystemPrompt renders the system prompt for a chat turn.
type SystemPrompt func() (string, error)

// Client runs chat turns against a Provider, executing tool calls from the
// registry until the model answers in plain text.
type Client struct {
	logger        *slog.Logger
	provider      Provider
	tools         *ToolRegistry
	system        SystemPrompt
	model         string
	maxTokens     int64
	maxIterations int
}

type ClientOptions struct {
	Model         string
	MaxTokens     int64
	MaxIterations int
	System        SystemPrompt
}

func NewClient(log *slog.Logger, provider Provider, tools *ToolRegistry, opts ClientOptions) *Client {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = config.DefaultMaxToolIterations
	}
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Client{
		logger:        log.With(slog.String("component", "llm")),
		provider:      provider,
		tools:         tools,
		system:        opts.System,
		model:         opts.Model,
		maxTokens:     opts.MaxTokens,
		maxIterations: opts.MaxIterations,
	}
}

// NewProvider picks the backend named in cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", config.ProviderAnthropic:
		return NewAnthropicProvider(cfg.AnthropicAPIKey), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// Chat appends text to history as a user turn and returns the model's final
// reply together with history extended by every turn of this exchange.
// The input slice is not modified.
func (c *Client) Chat(ctx context.Context, history []conversation.Message, text string) (string, []conversation.Message, error) {
	msgs := append(conversation.Clone(history), conversation.UserMessage(text))

	system := ""
	if c.system != nil {
		rendered, err := c.system()
		if err != nil {
			return "", nil, fmt.Errorf("render system prompt: %w", err)
		}
		system = rendered
	}
	tools := c.tools.List()

	for i := 0; i < c.maxIterations; i++ {
		resp, err := c.provider.Chat(ctx, ChatRequest{
			Model:     c.model,
			System:    system,
			Messages:  msgs,
			Tools:     tools,
			MaxTokens: c.maxTokens,
		})
		if err != nil {
			return "", nil, err
		}
		msgs = append(msgs, conversation.Message{
			Role:      conversation.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			return resp.Content, msgs, nil
		}
		for _, call := range resp.ToolCalls {
			result := c.runTool(ctx, call)
			msgs = append(msgs, conversation.ToolResultMessage(call.ID, call.Function.Name, result))
		}
	}
	return "", nil, ErrToolLoopExceeded
}

// Complete runs a single tool-less turn.
func (c *Client) Complete(ctx context.Context, system, user, model string, maxTokens int64) (string, error) {
	if model == "" {
		model = c.model
	}
	resp, err := c.provider.Chat(ctx, ChatRequest{
		Model:     model,
		System:    system,
		Messages:  []conversation.Message{conversation.UserMessage(user)},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) runTool(ctx context.Context, call conversation.ToolCall) string {
	name := call.Function.Name
	executor, _, ok := c.tools.Lookup(name)
	if !ok {
		return toolError(fmt.Errorf("unknown tool %q", name))
	}
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err))
		}
	}
	result, err := executor.CallTool(ctx, name, args)
	if err != nil {
		c.logger.Warn("tool call failed", slog.String("tool", name), slog.Any("error", err))
		return toolError(err)
	}
	c.logger.Info("tool call", slog.String("tool", name))
	if s, ok := result.(string); ok {
		return prune.Edges(s, name+" result", prune.ToolResult)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return toolError(fmt.Errorf("encode result: %w", err))
	}
	return prune.Edges(string(data), name+" result", prune.ToolResult)
}

func toolError(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
