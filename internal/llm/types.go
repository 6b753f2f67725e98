package llm

import (
	"context"
	"encoding/json"
)

// Provider streams model output events for a single request.
// Providers never execute tools; tool execution belongs to the Engine.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Completer is an optional interface for providers that support a
// non-streaming call. When a provider does not implement it, the Engine
// drains a stream through the same accumulator, so both paths produce
// identical completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Capabilities describe optional provider features.
type Capabilities struct {
	ToolCalls bool
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model turn. The Engine treats a Request as
// immutable once a turn starts; follow-up turns are built by appending
// tool-result messages to a fresh value.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     float32
	TopP            float32
	MaxTurns        int        // Max tool-execution turns (0 = use default)
	Filter          FilterMode // Which turns are visible in the delivered stream
	ConversationID  string     // Optional id used by persistence hooks
	Debug           bool

	// DisableToolExecution turns off the Engine's tool loop: the stream is
	// passed through as a single turn and any tool calls are delivered to
	// the caller unexecuted. The Engine sets this on every request it
	// forwards to a provider, since the Engine owns execution.
	DisableToolExecution bool
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Part represents a single content part.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-requested tool invocation. IDs are unique within a turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the output from executing a tool call.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool // True if this result represents a tool execution error
}

// FinishReason reports why the model stopped generating a turn.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Completion is the fold of all events for one turn. It is only ever built
// from a fully consumed event sequence; partial folds are never exposed.
type Completion struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventToolCallBegin EventType = "tool_call_begin" // Opens a tool call: ID + name
	EventToolCallDelta EventType = "tool_call_delta" // Partial argument JSON for an open call
	EventToolCall      EventType = "tool_call"       // A completed call delivered unexecuted
	EventToolExecStart EventType = "tool_exec_start" // Emitted when tool execution begins
	EventToolExecEnd   EventType = "tool_exec_end"   // Emitted when tool execution completes
	EventUsage         EventType = "usage"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event represents one streamed output update.
type Event struct {
	Type         EventType
	Text         string       // For EventTextDelta and EventToolCallDelta
	Tool         *ToolCall    // For EventToolCall
	ToolCallID   string       // For EventToolCallBegin/Delta and EventToolExecStart/End
	ToolName     string       // For EventToolCallBegin and EventToolExecStart/End
	ToolInfo     string       // For EventToolExecStart/End: argument preview
	ToolSuccess  bool         // For EventToolExecEnd
	ToolOutput   string       // For EventToolExecEnd
	Use          *Usage       // For EventUsage
	FinishReason FinishReason // For EventDone
	Err          error        // For EventError
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates usage counts.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

func SystemText(text string) Message {
	return Message{
		Role:  RoleSystem,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func UserText(text string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func ToolResultMessage(id, name, content string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: content,
			},
		}},
	}
}

// ToolErrorMessage creates a tool result message that indicates an error.
// The error is fed back to the model so it can respond gracefully instead
// of failing the whole conversation.
func ToolErrorMessage(id, name, errorText string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: errorText,
				IsError: true,
			},
		}},
	}
}

// TextContent extracts and concatenates the text parts of a message.
func (m Message) TextContent() string {
	var out string
	for _, part := range m.Parts {
		if part.Type == PartText {
			out += part.Text
		}
	}
	return out
}
