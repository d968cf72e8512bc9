package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ToolExecutor runs a tool with decoded JSON arguments. The result is
// serialized to JSON before it goes back to the model.
type ToolExecutor interface {
	CallTool(ctx context.Context, name string, arguments map[string]any) (any, error)
}

// ToolFunc adapts a function to ToolExecutor.
type ToolFunc func(ctx context.Context, arguments map[string]any) (any, error)

func (f ToolFunc) CallTool(ctx context.Context, _ string, arguments map[string]any) (any, error) {
	return f(ctx, arguments)
}

type registryItem struct {
	executor ToolExecutor
	tool     ToolDescriptor
}

// ToolRegistry maps tool names to executors. It is filled at startup and
// read-only afterwards.
type ToolRegistry struct {
	items map[string]registryItem
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		items: map[string]registryItem{},
	}
}

func (r *ToolRegistry) Register(executor ToolExecutor, tool ToolDescriptor) error {
	if executor == nil {
		return fmt.Errorf("tool executor is required")
	}
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.InputSchema == nil {
		tool.InputSchema = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	if _, exists := r.items[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	tool.Name = name
	r.items[name] = registryItem{
		executor: executor,
		tool:     tool,
	}
	return nil
}

func (r *ToolRegistry) Lookup(name string) (ToolExecutor, ToolDescriptor, bool) {
	if r == nil {
		return nil, ToolDescriptor{}, false
	}
	item, ok := r.items[strings.TrimSpace(name)]
	if !ok {
		return nil, ToolDescriptor{}, false
	}
	return item.executor, item.tool, true
}

// List returns descriptors sorted by name so prompts stay stable.
func (r *ToolRegistry) List() []ToolDescriptor {
	if r == nil || len(r.items) == 0 {
		return []ToolDescriptor{}
	}
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	tools := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.items[name].tool)
	}
	return tools
}
