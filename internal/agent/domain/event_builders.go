package domain

import "time"

// NewStartedEvent marks the beginning of a run.
func NewStartedEvent(model, prompt, workdir string, ts time.Time) Event {
	return NewEvent(KindStarted, ts,
		F("model", model),
		F("prompt", prompt),
		F("workdir", workdir),
	)
}

// NewCompletedEvent marks successful termination of a run.
func NewCompletedEvent(total time.Duration, ts time.Time) Event {
	return NewEvent(KindCompleted, ts,
		F("success", true),
		F("total_duration_ms", durationMillis(total)),
	)
}

func NewTextEvent(text string, ts time.Time) Event {
	return NewEvent(KindText, ts, F("text", text))
}

func NewThinkingEvent(thinking string, ts time.Time) Event {
	return NewEvent(KindThinking, ts, F("thinking", thinking))
}

// NewToolUseEvent records a tool invocation request reported by a message.
func NewToolUseEvent(id, name string, input map[string]any, ts time.Time) Event {
	return NewEvent(KindToolUse, ts,
		F("id", id),
		F("name", name),
		F("input", input),
	)
}

// NewToolResultEvent records a tool result block reported by a message.
func NewToolResultEvent(toolUseID string, content any, isError bool, ts time.Time) Event {
	return NewEvent(KindToolResult, ts,
		F("tool_use_id", toolUseID),
		F("content", content),
		F("is_error", isError),
	)
}

// NewToolStartEvent is emitted by the pre-tool hook.
func NewToolStartEvent(tool string, args map[string]any, ts time.Time) Event {
	return NewEvent(KindToolStart, ts,
		F("tool", tool),
		F("args", args),
	)
}

// NewToolFinishedEvent is emitted by the post-tool hook for generic tools.
func NewToolFinishedEvent(tool string, duration time.Duration, success bool, ts time.Time) Event {
	kind := KindToolEnd
	if !success {
		kind = KindToolError
	}
	return NewEvent(kind, ts,
		F("tool", tool),
		F("duration_ms", durationMillis(duration)),
		F("success", success),
	)
}

func NewFileReadEvent(path string, ts time.Time) Event {
	return NewEvent(KindFileRead, ts, F("path", path))
}

func NewFileWriteEvent(path string, size int, ts time.Time) Event {
	return NewEvent(KindFileWrite, ts,
		F("path", path),
		F("size", size),
	)
}

// ResultSummary carries the final run metadata reported by the collaborator.
type ResultSummary struct {
	Subtype       string
	DurationMs    int64
	DurationAPIMs int64
	IsError       bool
	NumTurns      int
	SessionID     string
	TotalCostUSD  float64
	Usage         map[string]any
	Result        string
}

func NewResultEvent(r ResultSummary, ts time.Time) Event {
	return NewEvent(KindResult, ts,
		F("subtype", r.Subtype),
		F("duration_ms", r.DurationMs),
		F("duration_api_ms", r.DurationAPIMs),
		F("is_error", r.IsError),
		F("num_turns", r.NumTurns),
		F("session_id", r.SessionID),
		F("total_cost_usd", r.TotalCostUSD),
		F("usage", r.Usage),
		F("result", r.Result),
	)
}

func NewSystemEvent(subtype string, data map[string]any, ts time.Time) Event {
	return NewEvent(KindSystem, ts,
		F("subtype", subtype),
		F("data", data),
	)
}

// NewErrorEvent carries a human readable message and a classification tag.
func NewErrorEvent(message, errType string, ts time.Time) Event {
	return NewEvent(KindError, ts,
		F("message", message),
		F("type", errType),
	)
}

func NewUserPromptEvent(prompt string, ts time.Time) Event {
	return NewEvent(KindUserPrompt, ts, F("prompt", prompt))
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
