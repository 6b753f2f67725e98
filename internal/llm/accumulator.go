package llm

import (
	"encoding/json"
	"strings"
)

// Accumulator folds an ordered event sequence into one Completion. Text
// deltas concatenate; tool-call argument deltas accumulate per call id; the
// terminal event captures the finish reason. The fold fails fast on
// protocol violations so a corrupted stream never reaches tool execution.
type Accumulator struct {
	text        strings.Builder
	order       []string // Call ids in the order they were opened
	names       map[string]string
	args        map[string]*strings.Builder
	complete    []ToolCall // Calls delivered whole, not as deltas
	completeIDs map[string]bool
	usage       Usage
	finish      FinishReason
	done        bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		names:       make(map[string]string),
		args:        make(map[string]*strings.Builder),
		completeIDs: make(map[string]bool),
	}
}

// idSeen reports whether a call id was already introduced, whether opened
// incrementally or delivered whole.
func (a *Accumulator) idSeen(id string) bool {
	if _, open := a.names[id]; open {
		return true
	}
	return a.completeIDs[id]
}

// Add folds one event. It returns a *MalformedStreamError when the event
// violates the fragment protocol, or the event's own error for EventError.
func (a *Accumulator) Add(event Event) error {
	switch event.Type {
	case EventTextDelta:
		a.text.WriteString(event.Text)
	case EventToolCallBegin:
		id := event.ToolCallID
		if a.idSeen(id) {
			return &MalformedStreamError{CallID: id, Reason: "tool call id reused"}
		}
		a.names[id] = event.ToolName
		a.args[id] = &strings.Builder{}
		a.order = append(a.order, id)
	case EventToolCallDelta:
		builder, open := a.args[event.ToolCallID]
		if !open {
			return &MalformedStreamError{CallID: event.ToolCallID, Reason: "argument delta for unknown tool call"}
		}
		builder.WriteString(event.Text)
	case EventToolCall:
		if event.Tool != nil {
			if a.idSeen(event.Tool.ID) {
				return &MalformedStreamError{CallID: event.Tool.ID, Reason: "tool call id reused"}
			}
			a.completeIDs[event.Tool.ID] = true
			a.complete = append(a.complete, *event.Tool)
		}
	case EventUsage:
		if event.Use != nil {
			a.usage.Add(*event.Use)
		}
	case EventDone:
		a.finish = event.FinishReason
		a.done = true
	case EventError:
		return event.Err
	}
	return nil
}

// Done reports whether the terminal event has been observed.
func (a *Accumulator) Done() bool {
	return a.done
}

// Completion returns the folded response. It must only be called after the
// terminal event; argument buffers are parsed here, and invalid JSON is a
// malformed stream.
func (a *Accumulator) Completion() (*Completion, error) {
	if !a.done {
		return nil, &MalformedStreamError{Reason: "stream ended without terminal event"}
	}

	calls := make([]ToolCall, 0, len(a.order)+len(a.complete))
	for _, id := range a.order {
		raw := a.args[id].String()
		if raw == "" {
			raw = "{}"
		}
		if !json.Valid([]byte(raw)) {
			return nil, &MalformedStreamError{CallID: id, Reason: "tool call arguments are not valid JSON"}
		}
		calls = append(calls, ToolCall{
			ID:        id,
			Name:      a.names[id],
			Arguments: json.RawMessage(raw),
		})
	}
	calls = append(calls, a.complete...)
	if len(calls) == 0 {
		calls = nil
	}

	return &Completion{
		Text:         a.text.String(),
		ToolCalls:    calls,
		FinishReason: a.finish,
		Usage:        a.usage,
	}, nil
}
