package llm

import (
	"log/slog"
)

// WrapDebugStream logs every event passing through a stream. No-op unless
// enabled.
func WrapDebugStream(enabled bool, inner Stream) Stream {
	if !enabled {
		return inner
	}
	return &debugStream{inner: inner}
}

type debugStream struct {
	inner Stream
}

func (s *debugStream) Recv() (Event, error) {
	event, err := s.inner.Recv()
	if err == nil {
		switch event.Type {
		case EventTextDelta:
			slog.Debug("stream event", "type", event.Type, "chars", len(event.Text))
		case EventToolCallBegin, EventToolExecStart, EventToolExecEnd:
			slog.Debug("stream event", "type", event.Type, "tool", event.ToolName, "call", event.ToolCallID)
		default:
			slog.Debug("stream event", "type", event.Type)
		}
	}
	return event, err
}

func (s *debugStream) Close() error {
	return s.inner.Close()
}
