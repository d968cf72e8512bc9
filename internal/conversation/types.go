// Package conversation defines the per-chat message log shared by the agent
// loop, the job notifier and the history stores.
package conversation

import "strings"

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a chat's history in provider-neutral form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall represents a function/tool invocation in an assistant message.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the name and serialized arguments of a tool call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// HasContent reports whether the message carries non-empty text or tool calls.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Content) != "" || len(m.ToolCalls) > 0
}

// Clone returns a deep copy so stores never share backing arrays with callers.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if len(m.ToolCalls) > 0 {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}
