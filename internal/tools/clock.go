package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/convoloop/convoloop/internal/llm"
)

// ClockTool reports the current time, optionally in a named time zone.
type ClockTool struct {
	// now is swapped in tests for deterministic output.
	now func() time.Time
}

// NewClockTool creates a new ClockTool.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

// ClockArgs are the arguments for current_time.
type ClockArgs struct {
	Timezone string `json:"timezone,omitempty"`
}

func (t *ClockTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ClockToolName,
		Description: "Get the current date and time. Optionally pass an IANA timezone name.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "IANA timezone, e.g. America/New_York (default: local)",
				},
			},
			"additionalProperties": false,
		},
	}
}

func (t *ClockTool) Preview(args json.RawMessage) string {
	var a ClockArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Timezone == "" {
		return ""
	}
	return a.Timezone
}

func (t *ClockTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ClockArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
		}
	}

	now := t.now()
	if a.Timezone != "" {
		loc, err := time.LoadLocation(a.Timezone)
		if err != nil {
			return formatToolError(NewToolErrorf(ErrInvalidParams, "unknown timezone: %s", a.Timezone)), nil
		}
		now = now.In(loc)
	}

	return fmt.Sprintf("%s (%s)", now.Format("2006-01-02 15:04:05 MST"), now.Location()), nil
}
