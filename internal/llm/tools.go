package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tool describes a callable external tool.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
	// Preview returns a human-readable description of what the tool will do,
	// shown before execution starts. Empty string if none.
	Preview(args json.RawMessage) string
}

// DirectTool is an optional interface for tools whose result should be
// delivered to the caller verbatim, ending the conversation without a
// further model turn. When a turn contains several calls, the result is
// returned directly only if every executed tool opts in.
type DirectTool interface {
	ReturnDirect() bool
}

// CriticalTool is an optional interface for tools whose failure should
// abort the conversation instead of being fed back to the model as an
// error result.
type CriticalTool interface {
	FatalOnError() bool
}

// ToolRegistry stores tools by name for execution.
type ToolRegistry struct {
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.tools[tool.Spec().Name] = tool
}

func (r *ToolRegistry) Unregister(name string) {
	delete(r.tools, name)
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// IsDirect returns true if the named tool requests direct return.
func (r *ToolRegistry) IsDirect(name string) bool {
	tool, ok := r.tools[name]
	if !ok {
		return false
	}
	if dt, ok := tool.(DirectTool); ok {
		return dt.ReturnDirect()
	}
	return false
}

// IsCritical returns true if a failure of the named tool is fatal.
func (r *ToolRegistry) IsCritical(name string) bool {
	tool, ok := r.tools[name]
	if !ok {
		return false
	}
	if ct, ok := tool.(CriticalTool); ok {
		return ct.FatalOnError()
	}
	return false
}

// AllSpecs returns the specs for all registered tools.
func (r *ToolRegistry) AllSpecs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec())
	}
	return specs
}

// ExtractToolInfo extracts a preview string from tool call arguments, e.g.
// "(path:main.go)" for a file tool.
func ExtractToolInfo(call ToolCall) string {
	if len(call.Arguments) == 0 {
		return ""
	}

	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return ""
	}

	return formatToolArgs(args, 500, 5)
}

func formatToolArgs(args map[string]any, maxLen, maxParams int) string {
	if len(args) == 0 {
		return ""
	}

	type argPair struct {
		key string
		val string
	}
	var pairs []argPair

	for k, v := range args {
		var valStr string
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			valStr = val
		case float64:
			if val == float64(int(val)) {
				valStr = fmt.Sprintf("%d", int(val))
			} else {
				valStr = fmt.Sprintf("%g", val)
			}
		case bool:
			valStr = fmt.Sprintf("%v", val)
		default:
			continue
		}

		if len(valStr) > 200 {
			valStr = valStr[:197] + "..."
		}
		pairs = append(pairs, argPair{key: k, val: valStr})
	}

	if len(pairs) == 0 {
		return ""
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})

	var result string
	if len(pairs) == 1 {
		result = "(" + pairs[0].val + ")"
	} else {
		var parts []string
		for i, p := range pairs {
			if i >= maxParams {
				parts = append(parts, "...")
				break
			}
			parts = append(parts, p.key+":"+p.val)
		}
		result = "(" + strings.Join(parts, ", ") + ")"
	}

	if len(result) > maxLen {
		result = result[:maxLen-4] + "...)"
	}

	return result
}
