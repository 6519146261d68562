package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"sandboxagent/internal/agent/domain"
	"sandboxagent/internal/agent/ports"
)

const unknownTool = "unknown"

// Bridge turns synchronous tool callbacks into queued lifecycle events.
// It is safe for concurrent use by the collaborator.
type Bridge struct {
	queue *Queue
	clock func() time.Time

	mu      sync.Mutex
	pending []pendingTool
}

type pendingTool struct {
	key     string
	tool    string
	started time.Time
}

var (
	_ ports.ToolHooks   = (*Bridge)(nil)
	_ ports.PromptHooks = (*Bridge)(nil)
)

// NewBridge creates a bridge writing into queue. A nil clock uses time.Now.
func NewBridge(queue *Queue, clock func() time.Time) *Bridge {
	if queue == nil {
		queue = NewQueue(DefaultQueueSize)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Bridge{queue: queue, clock: clock}
}

// Queue returns the queue the bridge writes into.
func (b *Bridge) Queue() *Queue {
	return b.queue
}

// Drain returns every event enqueued since the previous drain.
func (b *Bridge) Drain() []domain.Event {
	return b.queue.Drain()
}

func (b *Bridge) PreToolUse(_ context.Context, input ports.ToolHookInput) {
	now := b.clock()
	tool := toolName(input)

	b.mu.Lock()
	b.pending = append(b.pending, pendingTool{key: invocationKey(input), tool: tool, started: now})
	b.mu.Unlock()

	b.queue.Enqueue(domain.NewToolStartEvent(tool, toolArgs(input), now))
}

func (b *Bridge) PostToolUse(_ context.Context, input ports.ToolHookInput) {
	now := b.clock()
	tool := toolName(input)

	var elapsed time.Duration
	if started, ok := b.takeStart(invocationKey(input)); ok {
		elapsed = now.Sub(started)
	}

	args := toolArgs(input)
	switch tool {
	case "Read":
		b.queue.Enqueue(domain.NewFileReadEvent(filePath(args), now))
	case "Write":
		b.queue.Enqueue(domain.NewFileWriteEvent(filePath(args), len(stringify(args["content"])), now))
	default:
		success := !input.IsError && !strings.Contains(strings.ToLower(stringify(input.ToolResponse)), "error")
		b.queue.Enqueue(domain.NewToolFinishedEvent(tool, elapsed, success, now))
	}
}

func (b *Bridge) UserPromptSubmit(_ context.Context, prompt string) {
	b.queue.Enqueue(domain.NewUserPromptEvent(prompt, b.clock()))
}

// OnError closes every outstanding tool start with a failed terminal event,
// in start order, and then enqueues the error event.
func (b *Bridge) OnError(err error) {
	if err == nil {
		return
	}
	b.CloseOutstanding()
	b.queue.Enqueue(domain.NewErrorEvent(err.Error(), ErrorType(err), b.clock()))
}

// CloseOutstanding enqueues a failed tool_error for every start that never
// received its after callback, in start order.
func (b *Bridge) CloseOutstanding() {
	now := b.clock()

	b.mu.Lock()
	outstanding := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, p := range outstanding {
		b.queue.Enqueue(domain.NewToolFinishedEvent(p.tool, now.Sub(p.started), false, now))
	}
}

// Outstanding reports tool starts that have not seen a matching post hook.
func (b *Bridge) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// takeStart pops the most recent start recorded under key.
func (b *Bridge) takeStart(key string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.pending) - 1; i >= 0; i-- {
		if b.pending[i].key != key {
			continue
		}
		started := b.pending[i].started
		b.pending = append(b.pending[:i], b.pending[i+1:]...)
		return started, true
	}
	return time.Time{}, false
}

func invocationKey(input ports.ToolHookInput) string {
	if input.ToolUseID != "" {
		return "id:" + input.ToolUseID
	}
	return "name:" + toolName(input)
}

func toolName(input ports.ToolHookInput) string {
	if name := strings.TrimSpace(input.ToolName); name != "" {
		return name
	}
	return unknownTool
}

// toolArgs copies the input so later mutation by the collaborator cannot
// reach the event log.
func toolArgs(input ports.ToolHookInput) map[string]any {
	if input.ToolInput == nil {
		return map[string]any{}
	}
	return maps.Clone(input.ToolInput)
}

func filePath(args map[string]any) string {
	if p, ok := args["file_path"].(string); ok && p != "" {
		return p
	}
	if p, ok := args["path"].(string); ok {
		return p
	}
	return ""
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	if raw, err := json.Marshal(value); err == nil {
		return string(raw)
	}
	return fmt.Sprint(value)
}
