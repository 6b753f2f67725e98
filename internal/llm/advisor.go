package llm

import "context"

// RequestAdvisor transforms or inspects the request for a turn before it is
// sent to the provider. Advisors run in registration order; an error aborts
// the conversation.
type RequestAdvisor func(ctx context.Context, req *Request) error

// CompletionAdvisor observes a turn's completion immediately after
// aggregation resolves and before tool-call detection. This is the hook
// point for anything that must see the fully observed turn before the next
// one begins.
type CompletionAdvisor func(ctx context.Context, c *Completion) error

// TurnMetrics contains metrics collected during a turn.
type TurnMetrics struct {
	InputTokens  int // Tokens consumed as input this turn
	OutputTokens int // Tokens generated as output this turn
	ToolCalls    int // Number of tools executed this turn
}

// TurnCompletedCallback is called after each turn with the messages
// generated during that turn (the assistant message plus any tool results)
// and metrics about the turn. The Engine waits for it to return before
// issuing the next turn's request, so an external store invoked here always
// observes turn N before the request for turn N+1 exists. turnIndex is
// 0-based.
type TurnCompletedCallback func(ctx context.Context, turnIndex int, messages []Message, metrics TurnMetrics) error
