package llm

import (
	"encoding/json"
	"testing"
)

func TestFilterModeBuffered(t *testing.T) {
	if FilterAll.Buffered() {
		t.Error("FilterAll should not buffer")
	}
	if !FilterFinal.Buffered() {
		t.Error("FilterFinal must buffer")
	}
}

func TestFilterModeShouldEmit(t *testing.T) {
	toolTurn := &Completion{
		ToolCalls:    []ToolCall{{ID: "c1", Name: "shell", Arguments: json.RawMessage(`{}`)}},
		FinishReason: FinishToolCalls,
	}
	answerTurn := &Completion{Text: "done", FinishReason: FinishStop}

	if !FilterAll.ShouldEmit(toolTurn) {
		t.Error("FilterAll must emit tool turns")
	}
	if !FilterAll.ShouldEmit(answerTurn) {
		t.Error("FilterAll must emit answer turns")
	}
	if FilterFinal.ShouldEmit(toolTurn) {
		t.Error("FilterFinal must suppress tool turns")
	}
	if !FilterFinal.ShouldEmit(answerTurn) {
		t.Error("FilterFinal must emit the answer turn")
	}
}

func TestFilterModeString(t *testing.T) {
	if got := FilterAll.String(); got != "all" {
		t.Errorf("FilterAll.String() = %q", got)
	}
	if got := FilterFinal.String(); got != "final" {
		t.Errorf("FilterFinal.String() = %q", got)
	}
}
