package llm

import (
	"encoding/json"
	"testing"
)

func TestDetectToolCalls(t *testing.T) {
	call := ToolCall{ID: "call-1", Name: "shell", Arguments: json.RawMessage(`{}`)}

	tests := []struct {
		name       string
		completion *Completion
		want       int
	}{
		{"nil completion", nil, 0},
		{"no calls", &Completion{Text: "answer", FinishReason: FinishStop}, 0},
		{"tool finish with calls", &Completion{ToolCalls: []ToolCall{call}, FinishReason: FinishToolCalls}, 1},
		{"unset finish with calls", &Completion{ToolCalls: []ToolCall{call}}, 1},
		{"stop finish with stray calls", &Completion{ToolCalls: []ToolCall{call}, FinishReason: FinishStop}, 0},
		{"length finish with calls", &Completion{ToolCalls: []ToolCall{call}, FinishReason: FinishLength}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectToolCalls(tt.completion)
			if len(got) != tt.want {
				t.Errorf("DetectToolCalls() returned %d calls, want %d", len(got), tt.want)
			}
		})
	}
}
