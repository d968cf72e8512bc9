package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/memohai/jobrelay/internal/conversation"
)

const anthropicDefaultMaxTokens = 4096

type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey string, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages:  buildAnthropicMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildAnthropicTools(req.Tools)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var out Response
	out.StopReason = string(msg.StopReason)
	var texts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if strings.TrimSpace(block.Text) != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			args := string(block.Input)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, conversation.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: conversation.ToolCallFunction{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	out.Content = strings.Join(texts, "\n\n")
	return out, nil
}

func buildAnthropicTools(tools []ToolDescriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.InputSchema["properties"],
			},
		}
		switch required := tool.InputSchema["required"].(type) {
		case []string:
			toolParam.InputSchema.Required = required
		case []any:
			for _, r := range required {
				if s, ok := r.(string); ok {
					toolParam.InputSchema.Required = append(toolParam.InputSchema.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out
}

// buildAnthropicMessages converts history into alternating user/assistant
// turns. Tool results become user turns, consecutive same-role turns are
// merged, and tool_use/tool_result blocks without a partner are dropped.
func buildAnthropicMessages(msgs []conversation.Message) []anthropic.MessageParam {
	calls := map[string]bool{}
	results := map[string]bool{}
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			calls[tc.ID] = true
		}
		if m.Role == conversation.RoleTool {
			results[m.ToolCallID] = true
		}
	}

	var out []anthropic.MessageParam
	push := func(role anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleUser:
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			push(anthropic.MessageParamRoleUser, []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)})
		case conversation.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				if !results[tc.ID] {
					continue
				}
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil || input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Function.Name,
						Input: input,
					},
				})
			}
			push(anthropic.MessageParamRoleAssistant, blocks)
		case conversation.RoleTool:
			if !calls[m.ToolCallID] {
				continue
			}
			push(anthropic.MessageParamRoleUser, []anthropic.ContentBlockParamUnion{
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			})
		}
	}

	// The API expects the conversation to open with a user turn; a job notice
	// can be the first thing a chat ever sees.
	if len(out) > 0 && out[0].Role != anthropic.MessageParamRoleUser {
		out = append([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("(conversation resumed)")),
		}, out...)
	}
	return out
}
