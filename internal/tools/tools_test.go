package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestClockToolDefaultsToLocalTime(t *testing.T) {
	tool := NewClockTool()
	fixed := time.Date(2026, 8, 26, 15, 4, 5, 0, time.UTC)
	tool.now = func() time.Time { return fixed }

	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "2026-08-26 15:04:05") {
		t.Errorf("output = %q", out)
	}
}

func TestClockToolTimezone(t *testing.T) {
	tool := NewClockTool()
	fixed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tool.now = func() time.Time { return fixed }

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"timezone":"America/New_York"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "08:00:00") {
		t.Errorf("output = %q, want 08:00:00 EDT", out)
	}

	out, err = tool.Execute(context.Background(), json.RawMessage(`{"timezone":"Not/AZone"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, string(ErrInvalidParams)) {
		t.Errorf("bad timezone output = %q, want structured error", out)
	}
}

func TestReadFileToolRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool()
	args, _ := json.Marshal(ReadFileArgs{FilePath: path, StartLine: 2, EndLine: 3})
	out, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "two") || !strings.Contains(out, "three") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "one\n") || strings.Contains(out, "four") {
		t.Errorf("output leaked lines outside the range: %q", out)
	}
}

func TestReadFileToolMissingFile(t *testing.T) {
	tool := NewReadFileTool()
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"file_path":"/no/such/file"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, string(ErrFileNotFound)) {
		t.Errorf("output = %q, want FILE_NOT_FOUND", out)
	}
}

func TestShellToolCapturesOutputAndExitCode(t *testing.T) {
	tool := NewShellTool()
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo hello; exit 3"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("output = %q, want stdout captured", out)
	}
	if !strings.Contains(out, "exit code: 3") {
		t.Errorf("output = %q, want exit code 3", out)
	}
}

func TestShellToolTimeout(t *testing.T) {
	tool := NewShellTool()
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"sleep 10","timeout_seconds":1}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, string(ErrTimeout)) {
		t.Errorf("output = %q, want TIMEOUT", out)
	}
}

func TestDefaultRegistryContainsBuiltins(t *testing.T) {
	reg := DefaultRegistry()
	for _, name := range AllToolNames() {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("built-in tool %q not registered", name)
		}
	}
	if got := len(reg.AllSpecs()); got != len(AllToolNames()) {
		t.Errorf("registry has %d specs, want %d", got, len(AllToolNames()))
	}
}

func TestParseToolList(t *testing.T) {
	if got := ParseToolList(""); got != nil {
		t.Errorf("empty selection = %v, want nil", got)
	}
	got := ParseToolList("shell, read_file")
	if len(got) != 2 || !got["shell"] || !got["read_file"] {
		t.Errorf("ParseToolList = %v", got)
	}
}
