package ports

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Collaborator is the external coding agent. It accepts an instruction and
// streams higher-level messages back while firing tool hooks from its own
// execution context.
type Collaborator interface {
	Query(ctx context.Context, opts QueryOptions) (MessageStream, error)
}

// QueryOptions configures a single agent run.
type QueryOptions struct {
	Prompt       string
	WorkDir      string
	Model        string
	SystemPrompt string
	AllowedTools []string
	Hooks        ToolHooks
}

// MessageStream yields messages until io.EOF.
type MessageStream interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

// ToolHooks receives notifications around each tool invocation. Implementations
// must not block beyond enqueueing work.
type ToolHooks interface {
	PreToolUse(ctx context.Context, input ToolHookInput)
	PostToolUse(ctx context.Context, input ToolHookInput)
}

// PromptHooks is optionally implemented by hooks that want to observe the
// submitted user prompt.
type PromptHooks interface {
	UserPromptSubmit(ctx context.Context, prompt string)
}

// ToolHookInput is the payload delivered to tool hooks. Any field may be empty
// when the collaborator could not provide it.
type ToolHookInput struct {
	ToolUseID    string
	ToolName     string
	ToolInput    map[string]any
	ToolResponse any
	IsError      bool
}

// DecodeToolInput decodes a raw tool input payload into a map. Slightly broken
// JSON is repaired; anything unusable yields an empty map.
func DecodeToolInput(raw json.RawMessage) map[string]any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		if out == nil {
			return map[string]any{}
		}
		return out
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return map[string]any{}
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
