package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/convoloop/convoloop/internal/llm"
)

// ShellTool executes a shell command and returns its output.
type ShellTool struct{}

// NewShellTool creates a new ShellTool.
func NewShellTool() *ShellTool {
	return &ShellTool{}
}

// ShellArgs are the arguments for the shell tool.
type ShellArgs struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (t *ShellTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ShellToolName,
		Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory (defaults to current directory)",
				},
				"timeout_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "Timeout in seconds (default 30, max 300)",
				},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *ShellTool) Preview(args json.RawMessage) string {
	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	if len(a.Command) > 80 {
		return a.Command[:77] + "..."
	}
	return a.Command
}

func (t *ShellTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.Command == "" {
		return formatToolError(NewToolError(ErrInvalidParams, "command is required")), nil
	}

	timeout := 30
	if a.TimeoutSeconds > 0 {
		timeout = a.TimeoutSeconds
	}
	if timeout > 300 {
		timeout = 300
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
	if a.WorkingDir != "" {
		cmd.Dir = a.WorkingDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return formatToolError(NewToolErrorf(ErrTimeout, "command timed out after %ds", timeout)), nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return formatToolError(NewToolErrorf(ErrExecutionFailed, "%v", err)), nil
		}
	}

	var sb strings.Builder
	if out := strings.TrimRight(stdout.String(), "\n"); out != "" {
		sb.WriteString(out)
		sb.WriteString("\n")
	}
	if errOut := strings.TrimRight(stderr.String(), "\n"); errOut != "" {
		fmt.Fprintf(&sb, "stderr:\n%s\n", errOut)
	}
	fmt.Fprintf(&sb, "exit code: %d", exitCode)
	return sb.String(), nil
}
