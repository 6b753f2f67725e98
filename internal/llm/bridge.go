package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ExecutionResult is the outcome of executing one turn's tool calls.
// Either Direct is set (ReturnDirect) and the conversation ends with it, or
// Results holds the tool-result messages to append before the next turn.
// Results is always complete: the bridge never returns a partial set.
type ExecutionResult struct {
	ReturnDirect bool
	Direct       *Completion
	Results      []Message
}

// Bridge resolves tool calls against a registry and executes them. Sibling
// calls within a turn have no ordering dependency and run concurrently;
// their results are reassembled in call order before the bridge returns.
type Bridge struct {
	tools   *ToolRegistry
	allowed func(name string) bool // nil allows all registered tools
}

func NewBridge(tools *ToolRegistry) *Bridge {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Bridge{tools: tools}
}

// SetAllowedFilter restricts which registered tools may execute. Calls to
// filtered-out tools produce error results, same as unregistered tools.
func (b *Bridge) SetAllowedFilter(f func(name string) bool) {
	b.allowed = f
}

// Execute runs every call and assembles all results before returning.
// events may be nil; when set, tool_exec_start/end events are emitted there.
// Tool failures become error-result messages unless the tool is critical,
// in which case Execute fails with a *ToolExecutionError.
func (b *Bridge) Execute(ctx context.Context, calls []ToolCall, events chan<- Event) (*ExecutionResult, error) {
	calls = ensureToolCallIDs(calls)
	calls = dedupeToolCalls(calls)

	for _, call := range calls {
		if events != nil {
			err := emit(ctx, events, Event{
				Type:       EventToolExecStart,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				ToolInfo:   b.preview(call),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	results := make([]Message, len(calls))
	errs := make([]error, len(calls))

	if len(calls) == 1 {
		results[0], errs[0] = b.executeCall(ctx, calls[0], events)
	} else {
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			go func(idx int, c ToolCall) {
				defer wg.Done()
				results[idx], errs[idx] = b.executeCall(ctx, c, events)
			}(i, call)
		}
		wg.Wait()
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// Direct return only when every executed tool opts in.
	direct := true
	for _, call := range calls {
		if !b.tools.IsDirect(call.Name) {
			direct = false
			break
		}
	}
	if direct {
		return &ExecutionResult{
			ReturnDirect: true,
			Direct:       directCompletion(results),
			Results:      results,
		}, nil
	}

	return &ExecutionResult{Results: results}, nil
}

// executeCall runs a single call and returns its result message. Only
// critical-tool failures return an error.
func (b *Bridge) executeCall(ctx context.Context, call ToolCall, events chan<- Event) (Message, error) {
	tool, ok := b.tools.Get(call.Name)
	if ok && b.allowed != nil && !b.allowed(call.Name) {
		ok = false
	}
	if !ok {
		errMsg := fmt.Sprintf("Error: tool not available: %s", call.Name)
		if err := b.emitExecEnd(ctx, events, call, false, errMsg); err != nil {
			return Message{}, err
		}
		return ToolErrorMessage(call.ID, call.Name, errMsg), nil
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		if b.tools.IsCritical(call.Name) {
			if emitErr := b.emitExecEnd(ctx, events, call, false, err.Error()); emitErr != nil {
				return Message{}, emitErr
			}
			return Message{}, &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		}
		errMsg := fmt.Sprintf("Error: %v", err)
		if emitErr := b.emitExecEnd(ctx, events, call, false, errMsg); emitErr != nil {
			return Message{}, emitErr
		}
		return ToolErrorMessage(call.ID, call.Name, errMsg), nil
	}

	if err := b.emitExecEnd(ctx, events, call, true, output); err != nil {
		return Message{}, err
	}
	return ToolResultMessage(call.ID, call.Name, output), nil
}

// emitExecEnd reports a call's outcome on the event channel. It fails with
// the context error instead of blocking when the consumer is gone.
func (b *Bridge) emitExecEnd(ctx context.Context, events chan<- Event, call ToolCall, success bool, output string) error {
	if events == nil {
		return nil
	}
	return emit(ctx, events, Event{
		Type:        EventToolExecEnd,
		ToolCallID:  call.ID,
		ToolName:    call.Name,
		ToolInfo:    b.preview(call),
		ToolSuccess: success,
		ToolOutput:  output,
	})
}

// preview returns a short argument summary for a tool call.
func (b *Bridge) preview(call ToolCall) string {
	if tool, ok := b.tools.Get(call.Name); ok {
		if p := tool.Preview(call.Arguments); p != "" {
			if !strings.HasPrefix(p, "(") {
				return "(" + p + ")"
			}
			return p
		}
	}
	return ExtractToolInfo(call)
}

// directCompletion builds the terminal completion delivered when a turn's
// tools all request direct return.
func directCompletion(results []Message) *Completion {
	var parts []string
	for _, msg := range results {
		for _, part := range msg.Parts {
			if part.Type == PartToolResult && part.ToolResult != nil {
				parts = append(parts, part.ToolResult.Content)
			}
		}
	}
	return &Completion{
		Text:         strings.Join(parts, "\n"),
		FinishReason: FinishStop,
	}
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = "toolcall-" + uuid.NewString()
		}
	}
	return calls
}

func dedupeToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]struct{}, len(calls))
	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		if _, ok := seen[call.ID]; ok {
			continue
		}
		seen[call.ID] = struct{}{}
		out = append(out, call)
	}
	return out
}
