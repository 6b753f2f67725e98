package tools

import (
	"strings"

	"github.com/convoloop/convoloop/internal/llm"
)

// AllToolNames returns the names of every built-in tool.
func AllToolNames() []string {
	return []string{ClockToolName, ReadFileToolName, ShellToolName}
}

// DefaultRegistry builds a registry with all built-in tools.
func DefaultRegistry() *llm.ToolRegistry {
	reg := llm.NewToolRegistry()
	reg.Register(NewClockTool())
	reg.Register(NewReadFileTool())
	reg.Register(NewShellTool())
	return reg
}

// ParseToolList parses a comma-separated tool selection into a name set.
// An empty input selects all built-in tools.
func ParseToolList(list string) map[string]bool {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	selected := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			selected[name] = true
		}
	}
	return selected
}
