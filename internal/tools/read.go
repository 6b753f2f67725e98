package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/convoloop/convoloop/internal/llm"
)

// maxReadBytes caps file reads so a huge file can't blow out the context.
const maxReadBytes = 256 * 1024

// ReadFileTool implements the read_file tool.
type ReadFileTool struct{}

// NewReadFileTool creates a new ReadFileTool.
func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{}
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read file contents. Returns line-numbered output. Use start_line/end_line for pagination.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute or relative path to the file to read",
				},
				"start_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed start line (default: 1)",
				},
				"end_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed end line (default: EOF)",
				},
			},
			"required":             []string{"file_path"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadFileTool) Preview(args json.RawMessage) string {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.FilePath == "" {
		return ""
	}
	if a.StartLine > 0 && a.EndLine > 0 {
		return fmt.Sprintf("%s:%d-%d", a.FilePath, a.StartLine, a.EndLine)
	}
	return a.FilePath
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.FilePath == "" {
		return formatToolError(NewToolError(ErrInvalidParams, "file_path is required")), nil
	}

	info, err := os.Stat(a.FilePath)
	if err != nil {
		return formatToolError(NewToolErrorf(ErrFileNotFound, "%s: %v", a.FilePath, err)), nil
	}
	if info.Size() > maxReadBytes && a.StartLine == 0 && a.EndLine == 0 {
		return formatToolError(NewToolErrorf(ErrFileTooLarge,
			"%s is %d bytes; use start_line/end_line to read a range", a.FilePath, info.Size())), nil
	}

	data, err := os.ReadFile(a.FilePath)
	if err != nil {
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "read %s: %v", a.FilePath, err)), nil
	}

	lines := strings.Split(string(data), "\n")
	start := 1
	if a.StartLine > 0 {
		start = a.StartLine
	}
	end := len(lines)
	if a.EndLine > 0 && a.EndLine < end {
		end = a.EndLine
	}
	if start > len(lines) {
		return formatToolError(NewToolErrorf(ErrInvalidParams,
			"start_line %d past end of file (%d lines)", start, len(lines))), nil
	}

	var sb strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&sb, "%6d\t%s\n", i, lines[i-1])
	}
	return sb.String(), nil
}
