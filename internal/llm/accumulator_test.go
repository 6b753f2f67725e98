package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAccumulatorFoldsTextDeltas(t *testing.T) {
	acc := NewAccumulator()
	for _, ev := range chunkText("Hello, streaming world!") {
		if err := acc.Add(ev); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := acc.Add(Event{Type: EventDone, FinishReason: FinishStop}); err != nil {
		t.Fatalf("Add(done) error = %v", err)
	}

	completion, err := acc.Completion()
	if err != nil {
		t.Fatalf("Completion() error = %v", err)
	}
	if completion.Text != "Hello, streaming world!" {
		t.Errorf("Text = %q, want %q", completion.Text, "Hello, streaming world!")
	}
	if completion.FinishReason != FinishStop {
		t.Errorf("FinishReason = %q, want %q", completion.FinishReason, FinishStop)
	}
	if completion.ToolCalls != nil {
		t.Errorf("ToolCalls = %v, want nil", completion.ToolCalls)
	}
}

func TestAccumulatorAssemblesToolCallFragments(t *testing.T) {
	acc := NewAccumulator()
	events := []Event{
		{Type: EventToolCallBegin, ToolCallID: "call-1", ToolName: "read_file"},
		{Type: EventToolCallDelta, ToolCallID: "call-1", Text: `{"file_pa`},
		{Type: EventToolCallBegin, ToolCallID: "call-2", ToolName: "shell"},
		{Type: EventToolCallDelta, ToolCallID: "call-2", Text: `{"command":"ls"}`},
		{Type: EventToolCallDelta, ToolCallID: "call-1", Text: `th":"main.go"}`},
		{Type: EventDone, FinishReason: FinishToolCalls},
	}
	for _, ev := range events {
		if err := acc.Add(ev); err != nil {
			t.Fatalf("Add(%v) error = %v", ev.Type, err)
		}
	}

	completion, err := acc.Completion()
	if err != nil {
		t.Fatalf("Completion() error = %v", err)
	}
	if len(completion.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(completion.ToolCalls))
	}
	// Calls come back in the order they were opened, even with
	// interleaved fragments.
	first := completion.ToolCalls[0]
	if first.ID != "call-1" || first.Name != "read_file" {
		t.Errorf("first call = %s/%s, want call-1/read_file", first.ID, first.Name)
	}
	var args map[string]string
	if err := json.Unmarshal(first.Arguments, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args["file_path"] != "main.go" {
		t.Errorf("file_path = %q, want %q", args["file_path"], "main.go")
	}
	if completion.ToolCalls[1].ID != "call-2" {
		t.Errorf("second call = %s, want call-2", completion.ToolCalls[1].ID)
	}
}

func TestAccumulatorEmptyArgumentsBecomeEmptyObject(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventToolCallBegin, ToolCallID: "call-1", ToolName: "current_time"})
	acc.Add(Event{Type: EventDone, FinishReason: FinishToolCalls})

	completion, err := acc.Completion()
	if err != nil {
		t.Fatalf("Completion() error = %v", err)
	}
	if got := string(completion.ToolCalls[0].Arguments); got != "{}" {
		t.Errorf("Arguments = %q, want %q", got, "{}")
	}
}

func TestAccumulatorRejectsDeltaForUnknownCall(t *testing.T) {
	acc := NewAccumulator()
	err := acc.Add(Event{Type: EventToolCallDelta, ToolCallID: "ghost", Text: "{}"})

	var malformed *MalformedStreamError
	if !errors.As(err, &malformed) {
		t.Fatalf("Add() error = %v, want MalformedStreamError", err)
	}
	if malformed.CallID != "ghost" {
		t.Errorf("CallID = %q, want %q", malformed.CallID, "ghost")
	}
}

func TestAccumulatorRejectsReusedCallID(t *testing.T) {
	acc := NewAccumulator()
	if err := acc.Add(Event{Type: EventToolCallBegin, ToolCallID: "call-1", ToolName: "a"}); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	err := acc.Add(Event{Type: EventToolCallBegin, ToolCallID: "call-1", ToolName: "b"})

	var malformed *MalformedStreamError
	if !errors.As(err, &malformed) {
		t.Fatalf("Add() error = %v, want MalformedStreamError", err)
	}
}

func TestAccumulatorRejectsReuseAcrossDeliveryForms(t *testing.T) {
	whole := &ToolCall{ID: "call-1", Name: "a", Arguments: rawArgs(`{}`)}

	t.Run("two complete calls share an id", func(t *testing.T) {
		acc := NewAccumulator()
		if err := acc.Add(Event{Type: EventToolCall, Tool: whole}); err != nil {
			t.Fatalf("first complete call: %v", err)
		}
		err := acc.Add(Event{Type: EventToolCall, Tool: whole})
		var malformed *MalformedStreamError
		if !errors.As(err, &malformed) {
			t.Fatalf("Add() error = %v, want MalformedStreamError", err)
		}
	})

	t.Run("begin reuses a complete call's id", func(t *testing.T) {
		acc := NewAccumulator()
		if err := acc.Add(Event{Type: EventToolCall, Tool: whole}); err != nil {
			t.Fatalf("complete call: %v", err)
		}
		err := acc.Add(Event{Type: EventToolCallBegin, ToolCallID: "call-1", ToolName: "b"})
		var malformed *MalformedStreamError
		if !errors.As(err, &malformed) {
			t.Fatalf("Add() error = %v, want MalformedStreamError", err)
		}
	})
}

func TestAccumulatorRejectsInvalidArgumentJSON(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventToolCallBegin, ToolCallID: "call-1", ToolName: "shell"})
	acc.Add(Event{Type: EventToolCallDelta, ToolCallID: "call-1", Text: `{"command":`})
	acc.Add(Event{Type: EventDone, FinishReason: FinishToolCalls})

	_, err := acc.Completion()
	var malformed *MalformedStreamError
	if !errors.As(err, &malformed) {
		t.Fatalf("Completion() error = %v, want MalformedStreamError", err)
	}
}

func TestAccumulatorCompletionBeforeDoneFails(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventTextDelta, Text: "partial"})

	_, err := acc.Completion()
	var malformed *MalformedStreamError
	if !errors.As(err, &malformed) {
		t.Fatalf("Completion() error = %v, want MalformedStreamError", err)
	}
}

func TestAccumulatorSumsUsage(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 2}})
	acc.Add(Event{Type: EventUsage, Use: &Usage{InputTokens: 0, OutputTokens: 7}})
	acc.Add(Event{Type: EventDone, FinishReason: FinishStop})

	completion, err := acc.Completion()
	if err != nil {
		t.Fatalf("Completion() error = %v", err)
	}
	if completion.Usage.InputTokens != 10 || completion.Usage.OutputTokens != 9 {
		t.Errorf("Usage = %+v, want 10/9", completion.Usage)
	}
}

func TestAccumulatorAcceptsCompleteToolCallEvents(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventToolCall, Tool: &ToolCall{
		ID: "call-1", Name: "shell", Arguments: json.RawMessage(`{"command":"ls"}`),
	}})
	acc.Add(Event{Type: EventDone, FinishReason: FinishToolCalls})

	completion, err := acc.Completion()
	if err != nil {
		t.Fatalf("Completion() error = %v", err)
	}
	if len(completion.ToolCalls) != 1 || completion.ToolCalls[0].Name != "shell" {
		t.Fatalf("ToolCalls = %+v, want one shell call", completion.ToolCalls)
	}
}
