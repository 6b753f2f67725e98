package cmd

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/convoloop/convoloop/internal/llm"
)

type scriptedStream struct {
	events []llm.Event
	pos    int
}

func (s *scriptedStream) Recv() (llm.Event, error) {
	if s.pos >= len(s.events) {
		return llm.Event{}, io.EOF
	}
	event := s.events[s.pos]
	s.pos++
	return event, nil
}

func (s *scriptedStream) Close() error { return nil }

func newRenderTestCmd() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

func TestRenderStreamSeparatesTextAndToolActivity(t *testing.T) {
	cmd, out, errOut := newRenderTestCmd()
	stream := &scriptedStream{events: []llm.Event{
		{Type: llm.EventToolExecStart, ToolName: "shell", ToolInfo: "ls"},
		{Type: llm.EventToolExecEnd, ToolName: "shell", ToolSuccess: true},
		{Type: llm.EventTextDelta, Text: "three "},
		{Type: llm.EventTextDelta, Text: "files"},
		{Type: llm.EventDone, FinishReason: llm.FinishStop},
	}}

	if err := renderStream(cmd, stream); err != nil {
		t.Fatalf("renderStream() error = %v", err)
	}
	if got := out.String(); got != "three files\n" {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(errOut.String(), "shell ls") {
		t.Errorf("stderr = %q, want the tool start line", errOut.String())
	}
	if strings.Contains(errOut.String(), "failed") {
		t.Errorf("stderr = %q, successful tools should not report failure", errOut.String())
	}
}

func TestRenderStreamReportsToolFailure(t *testing.T) {
	cmd, out, errOut := newRenderTestCmd()
	stream := &scriptedStream{events: []llm.Event{
		{Type: llm.EventToolExecStart, ToolName: "read_file"},
		{Type: llm.EventToolExecEnd, ToolName: "read_file", ToolSuccess: false},
		{Type: llm.EventTextDelta, Text: "could not read it"},
		{Type: llm.EventDone, FinishReason: llm.FinishStop},
	}}

	if err := renderStream(cmd, stream); err != nil {
		t.Fatalf("renderStream() error = %v", err)
	}
	if !strings.Contains(errOut.String(), "read_file failed") {
		t.Errorf("stderr = %q, want failure line", errOut.String())
	}
	if !strings.Contains(out.String(), "could not read it") {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestRenderStreamNoTrailingNewlineWithoutText(t *testing.T) {
	cmd, out, _ := newRenderTestCmd()
	stream := &scriptedStream{events: []llm.Event{
		{Type: llm.EventDone, FinishReason: llm.FinishStop},
	}}

	if err := renderStream(cmd, stream); err != nil {
		t.Fatalf("renderStream() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("stdout = %q, want empty", out.String())
	}
}
