package claudecli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"sandboxagent/internal/agent/ports"
)

// envelope is one line of `claude --output-format stream-json` output.
type envelope struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype"`
	Message *messageContent `json:"message,omitempty"`

	SessionID     string         `json:"session_id"`
	Result        string         `json:"result"`
	IsError       bool           `json:"is_error"`
	NumTurns      int            `json:"num_turns"`
	DurationMs    int64          `json:"duration_ms"`
	DurationAPIMs int64          `json:"duration_api_ms"`
	TotalCostUSD  float64        `json:"total_cost_usd"`
	Usage         map[string]any `json:"usage"`
}

type messageContent struct {
	Role    string          `json:"role"`
	Model   string          `json:"model,omitempty"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   any             `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// decodeLine parses one NDJSON line. It returns a nil message for line types
// that carry nothing the merger translates.
func decodeLine(line []byte) (ports.Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode stream line: %w", err)
	}

	switch env.Type {
	case "system":
		return decodeSystem(line, env.Subtype)
	case "assistant", "user":
		if env.Message == nil {
			return nil, fmt.Errorf("%s line without message", env.Type)
		}
		blocks, err := decodeBlocks(env.Message.Content)
		if err != nil {
			return nil, err
		}
		role := env.Message.Role
		if role == "" {
			role = env.Type
		}
		return ports.ContentMessage{Role: role, Model: env.Message.Model, Blocks: blocks}, nil
	case "result":
		return ports.ResultMessage{
			Subtype:       env.Subtype,
			DurationMs:    env.DurationMs,
			DurationAPIMs: env.DurationAPIMs,
			IsError:       env.IsError,
			NumTurns:      env.NumTurns,
			SessionID:     env.SessionID,
			TotalCostUSD:  env.TotalCostUSD,
			Usage:         env.Usage,
			Result:        env.Result,
		}, nil
	default:
		return nil, nil
	}
}

func decodeSystem(line []byte, subtype string) (ports.Message, error) {
	var data map[string]any
	if err := json.Unmarshal(line, &data); err != nil {
		return nil, fmt.Errorf("decode system line: %w", err)
	}
	delete(data, "type")
	delete(data, "subtype")
	return ports.SystemMessage{Subtype: subtype, Data: data}, nil
}

// decodeBlocks accepts either a plain string or an array of typed blocks.
func decodeBlocks(raw json.RawMessage) ([]ports.ContentBlock, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("decode string content: %w", err)
		}
		return []ports.ContentBlock{ports.TextBlock{Text: text}}, nil
	}

	var wire []contentBlock
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode content blocks: %w", err)
	}
	blocks := make([]ports.ContentBlock, 0, len(wire))
	for _, b := range wire {
		switch b.Type {
		case "text":
			blocks = append(blocks, ports.TextBlock{Text: b.Text})
		case "thinking":
			blocks = append(blocks, ports.ThinkingBlock{Thinking: b.Thinking, Signature: b.Signature})
		case "tool_use":
			blocks = append(blocks, ports.ToolUseBlock{ID: b.ID, Name: b.Name, Input: ports.DecodeToolInput(b.Input)})
		case "tool_result":
			blocks = append(blocks, ports.ToolResultBlock{ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		}
	}
	return blocks, nil
}
