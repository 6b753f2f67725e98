package llm

import (
	"encoding/json"
	"testing"
)

func TestBuildOpenAIMessagesRoleMapping(t *testing.T) {
	call := &ToolCall{ID: "call-1", Name: "shell", Arguments: json.RawMessage(`{"command":"ls"}`)}
	messages := []Message{
		SystemText("be brief"),
		UserText("list the files"),
		{Role: RoleAssistant, Parts: []Part{
			{Type: PartText, Text: "running it"},
			{Type: PartToolCall, ToolCall: call},
		}},
		ToolResultMessage("call-1", "shell", "a.txt\nb.txt"),
	}

	out := buildOpenAIMessages(messages)
	if len(out) != 4 {
		t.Fatalf("got %d messages, want 4", len(out))
	}
	if out[0].OfSystem == nil {
		t.Error("first message should be a system message")
	}
	if out[1].OfUser == nil {
		t.Error("second message should be a user message")
	}
	assistant := out[2].OfAssistant
	if assistant == nil {
		t.Fatal("third message should be an assistant message")
	}
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant carries %d tool calls, want 1", len(assistant.ToolCalls))
	}
	if assistant.ToolCalls[0].ID != "call-1" {
		t.Errorf("tool call id = %q", assistant.ToolCalls[0].ID)
	}
	if assistant.ToolCalls[0].Function.Name != "shell" {
		t.Errorf("tool call name = %q", assistant.ToolCalls[0].Function.Name)
	}
	if assistant.ToolCalls[0].Function.Arguments != `{"command":"ls"}` {
		t.Errorf("tool call arguments = %q", assistant.ToolCalls[0].Function.Arguments)
	}
	if out[3].OfTool == nil {
		t.Error("fourth message should be a tool message")
	}
}

func TestBuildOpenAITools(t *testing.T) {
	specs := []ToolSpec{{
		Name:        "read_file",
		Description: "Read file contents",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{"type": "string"},
			},
			"required": []string{"file_path"},
		},
	}}

	tools := buildOpenAITools(specs)
	if len(tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(tools))
	}
	if tools[0].Function.Name != "read_file" {
		t.Errorf("Name = %q", tools[0].Function.Name)
	}
	if tools[0].Function.Description.Value != "Read file contents" {
		t.Errorf("Description = %q", tools[0].Function.Description.Value)
	}
	if _, ok := tools[0].Function.Parameters["properties"]; !ok {
		t.Error("Parameters should carry the schema properties")
	}
}

func TestOpenAIFinishReason(t *testing.T) {
	tests := []struct {
		reason string
		want   FinishReason
	}{
		{"stop", FinishStop},
		{"tool_calls", FinishToolCalls},
		{"function_call", FinishToolCalls},
		{"length", FinishLength},
		{"", FinishStop},
	}
	for _, tt := range tests {
		if got := openAIFinishReason(tt.reason); got != tt.want {
			t.Errorf("openAIFinishReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
