package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"github.com/openai/openai-go/v3/shared/constant"

	"github.com/memohai/jobrelay/internal/conversation"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string, opts ...option.RequestOption) *OpenAIProvider {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(baseURL); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	clientOpts = append(clientOpts, opts...)
	return &OpenAIProvider{client: openai.NewClient(clientOpts...)}
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (Response, error) {
	params := buildOpenAIParams(req)
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completions: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	out := Response{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		fn := tc.AsFunction()
		args := fn.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, conversation.ToolCall{
			ID:   fn.ID,
			Type: "function",
			Function: conversation.ToolCallFunction{
				Name:      fn.Function.Name,
				Arguments: args,
			},
		})
	}
	return out, nil
}

func buildOpenAIParams(req ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1),
	}
	if strings.TrimSpace(req.System) != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toOpenAIMessage(m))
	}
	if len(req.Tools) > 0 {
		params.Tools = make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			fn := shared.FunctionDefinitionParam{
				Name:       t.Name,
				Parameters: shared.FunctionParameters(t.InputSchema),
			}
			if t.Description != "" {
				fn.Description = param.NewOpt(t.Description)
			}
			params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(fn))
		}
		params.ToolChoice.OfAuto = param.NewOpt(string(openai.ChatCompletionToolChoiceOptionAutoAuto))
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(req.MaxTokens)
	}
	return params
}

func toOpenAIMessage(m conversation.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case conversation.RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID)
	case conversation.RoleAssistant:
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			assistant.Content.OfString = param.NewOpt(m.Content)
		}
		for _, tc := range m.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
					Type: constant.Function("function"),
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	default:
		return openai.UserMessage(m.Content)
	}
}
