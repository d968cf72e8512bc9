package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/jobrelay/internal/config"
	"github.com/memohai/jobrelay/internal/conversation"
)

func TestBuildAnthropicMessages(t *testing.T) {
	t.Parallel()

	msgs := []conversation.Message{
		conversation.AssistantMessage("Job finished."),
		conversation.UserMessage("what changed?"),
		{Role: conversation.RoleAssistant, ToolCalls: []conversation.ToolCall{
			toolCall("c1", "get_job_status", `{"job_id":"abc"}`),
			toolCall("orphan", "get_job_status", `{}`),
		}},
		conversation.ToolResultMessage("c1", "get_job_status", `{"jobs":[]}`),
		conversation.ToolResultMessage("stray", "x", "ignored"),
		conversation.AssistantMessage("Nothing running."),
		conversation.AssistantMessage("Job finished."),
	}
	out := buildAnthropicMessages(msgs)

	roles := make([]anthropic.MessageParamRole, 0, len(out))
	for _, m := range out {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
	}, roles)

	// tool_use for c1 only; the orphan call is dropped
	assert.Len(t, out[3].Content, 1)
	assert.NotNil(t, out[3].Content[0].OfToolUse)
	// stray tool result is dropped
	assert.Len(t, out[4].Content, 1)
	assert.NotNil(t, out[4].Content[0].OfToolResult)
	// two trailing assistant notices merge into one turn
	assert.Len(t, out[5].Content, 2)
}

func TestBuildAnthropicTools(t *testing.T) {
	t.Parallel()

	tools := buildAnthropicTools([]ToolDescriptor{{
		Name:        "create_job",
		Description: "d",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"job_description": map[string]any{"type": "string"}},
			"required":   []any{"job_description"},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, []string{"job_description"}, tools[0].OfTool.InputSchema.Required)
}

func TestAnthropicProviderChat(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[
				{"type":"text","text":"Creating it."},
				{"type":"tool_use","id":"toolu_1","name":"create_job","input":{"job_description":"x"}}
			],
			"stop_reason":"tool_use","stop_sequence":null,
			"usage":{"input_tokens":10,"output_tokens":5}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", anthropicoption.WithBaseURL(srv.URL), anthropicoption.WithMaxRetries(0))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:     "claude-test",
		System:    "sys",
		Messages:  []conversation.Message{conversation.UserMessage("hi")},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Creating it.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "create_job", resp.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"job_description":"x"}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 100, body["max_tokens"])
}

func TestOpenAIProviderChat(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{
				"role":"assistant","content":null,
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_job_status","arguments":""}}]
			}}]
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:  "gpt-test",
		System: "sys",
		Messages: []conversation.Message{
			conversation.UserMessage("status?"),
		},
		Tools: []ToolDescriptor{{Name: "get_job_status", InputSchema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "{}", resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", resp.StopReason)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2, "system + user")
	assert.Len(t, body["tools"], 1)
}

func TestBuildOpenAIParamsAssistantToolCalls(t *testing.T) {
	t.Parallel()

	params := buildOpenAIParams(ChatRequest{
		Model: "m",
		Messages: []conversation.Message{
			{Role: conversation.RoleAssistant, ToolCalls: []conversation.ToolCall{toolCall("c1", "create_job", `{}`)}},
			conversation.ToolResultMessage("c1", "create_job", "ok"),
		},
		MaxTokens: 50,
	})
	require.Len(t, params.Messages, 2)
	require.NotNil(t, params.Messages[0].OfAssistant)
	assert.Len(t, params.Messages[0].OfAssistant.ToolCalls, 1)
	assert.NotNil(t, params.Messages[1].OfTool)
	assert.Empty(t, params.Tools)
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(config.LLMConfig{Provider: "anthropic"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, p)

	p, err = NewProvider(config.LLMConfig{Provider: "OpenAI"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = NewProvider(config.LLMConfig{Provider: "other"})
	assert.Error(t, err)
}
