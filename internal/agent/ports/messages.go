package ports

// MessageKind discriminates collaborator messages.
type MessageKind string

const (
	MessageKindContent MessageKind = "content"
	MessageKindResult  MessageKind = "result"
	MessageKindSystem  MessageKind = "system"
)

// Message is a higher-level message produced by the collaborator.
type Message interface {
	MessageKind() MessageKind
}

// ContentMessage holds an ordered list of content blocks. Role is "assistant"
// for model output and "user" for tool results echoed back.
type ContentMessage struct {
	Role   string
	Model  string
	Blocks []ContentBlock
}

func (ContentMessage) MessageKind() MessageKind { return MessageKindContent }

// ResultMessage reports cost, usage and timing for the finished run.
type ResultMessage struct {
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

func (ResultMessage) MessageKind() MessageKind { return MessageKindResult }

// SystemMessage carries opaque collaborator metadata.
type SystemMessage struct {
	Subtype string
	Data    map[string]any
}

func (SystemMessage) MessageKind() MessageKind { return MessageKindSystem }

// BlockType discriminates content blocks.
type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeThinking   BlockType = "thinking"
	BlockTypeToolUse    BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
)

// ContentBlock is one typed element of a ContentMessage.
type ContentBlock interface {
	BlockType() BlockType
}

type TextBlock struct {
	Text string
}

func (TextBlock) BlockType() BlockType { return BlockTypeText }

type ThinkingBlock struct {
	Thinking  string
	Signature string
}

func (ThinkingBlock) BlockType() BlockType { return BlockTypeThinking }

type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUseBlock) BlockType() BlockType { return BlockTypeToolUse }

// ToolResultBlock content is either a string or a list of structured parts.
type ToolResultBlock struct {
	ToolUseID string
	Content   any
	IsError   bool
}

func (ToolResultBlock) BlockType() BlockType { return BlockTypeToolResult }
