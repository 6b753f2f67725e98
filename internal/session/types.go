package session

import (
	"time"

	"github.com/convoloop/convoloop/internal/llm"
)

// Status represents the current state of a conversation.
type Status string

const (
	StatusActive      Status = "active"      // Conversation is open
	StatusComplete    Status = "complete"    // Conversation finished normally
	StatusError       Status = "error"       // Conversation ended with an error
	StatusInterrupted Status = "interrupted" // Conversation was cancelled
)

// Conversation is one persisted conversation with its accumulated metrics.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	Summary   string    `json:"summary,omitempty" yaml:"summary,omitempty"` // First user message
	Provider  string    `json:"provider" yaml:"provider"`
	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	LLMTurns     int    `json:"llm_turns,omitempty" yaml:"llm_turns,omitempty"`         // Model round-trips
	ToolCalls    int    `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`       // Total tool executions
	InputTokens  int    `json:"input_tokens,omitempty" yaml:"input_tokens,omitempty"`   // Total input tokens
	OutputTokens int    `json:"output_tokens,omitempty" yaml:"output_tokens,omitempty"` // Total output tokens
	Status       Status `json:"status,omitempty" yaml:"status,omitempty"`
}

// Message is one message in a conversation. Parts stores the full
// llm.Message parts so tool calls and results round-trip exactly.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           llm.Role   `json:"role"`
	Parts          []llm.Part `json:"parts"`
	TextContent    string     `json:"text_content"` // Extracted text for listing
	CreatedAt      time.Time  `json:"created_at"`
	Sequence       int        `json:"sequence"`
}

// SearchResult is one full-text search hit.
type SearchResult struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	Summary        string    `json:"summary"`
	Provider       string    `json:"provider"`
	Snippet        string    `json:"snippet"` // Matched text with ** highlights
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage converts an engine message for persistence.
func NewMessage(conversationID string, msg llm.Message) Message {
	return Message{
		ConversationID: conversationID,
		Role:           msg.Role,
		Parts:          msg.Parts,
		TextContent:    msg.TextContent(),
		CreatedAt:      time.Now(),
	}
}

// ToLLM converts a stored message back to its engine form.
func (m Message) ToLLM() llm.Message {
	return llm.Message{Role: m.Role, Parts: m.Parts}
}
