package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// MockTurn scripts one provider turn.
type MockTurn struct {
	Events []Event
	Err    error         // Returned from Recv after Events are drained
	Hang   bool          // Block after Events until the context is cancelled
	Delay  time.Duration // Pause between events
}

// MockProvider is a scripted Provider for tests. Each Stream call plays
// the next scripted turn; calls past the script end return an empty
// terminal turn.
type MockProvider struct {
	name string
	caps Capabilities

	mu       sync.Mutex
	turns    []MockTurn
	call     int
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name: name,
		caps: Capabilities{ToolCalls: true},
	}
}

func (p *MockProvider) WithCapabilities(caps Capabilities) *MockProvider {
	p.caps = caps
	return p
}

func (p *MockProvider) Name() string               { return p.name }
func (p *MockProvider) Capabilities() Capabilities { return p.caps }

// AddTextResponse scripts a turn that streams text in small chunks and
// finishes normally.
func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	events := chunkText(text)
	events = append(events,
		Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: len(text) / 4}},
		Event{Type: EventDone, FinishReason: FinishStop},
	)
	return p.AddTurn(MockTurn{Events: events})
}

// AddToolCall scripts a turn that streams one tool call incrementally and
// finishes with a tool-calls reason.
func (p *MockProvider) AddToolCall(id, name string, args any) *MockProvider {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("marshal mock args: %v", err))
	}
	half := len(raw) / 2
	events := []Event{
		{Type: EventToolCallBegin, ToolCallID: id, ToolName: name},
		{Type: EventToolCallDelta, ToolCallID: id, Text: string(raw[:half])},
		{Type: EventToolCallDelta, ToolCallID: id, Text: string(raw[half:])},
		{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}},
		{Type: EventDone, FinishReason: FinishToolCalls},
	}
	return p.AddTurn(MockTurn{Events: events})
}

// AddTurn appends a raw scripted turn.
func (p *MockProvider) AddTurn(turn MockTurn) *MockProvider {
	p.mu.Lock()
	p.turns = append(p.turns, turn)
	p.mu.Unlock()
	return p
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	var turn MockTurn
	if p.call < len(p.turns) {
		turn = p.turns[p.call]
	} else {
		turn = MockTurn{Events: []Event{{Type: EventDone, FinishReason: FinishStop}}}
	}
	p.call++
	p.mu.Unlock()

	return &mockStream{ctx: ctx, turn: turn}, nil
}

// CallCount reports how many times Stream was invoked.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.call
}

type mockStream struct {
	ctx   context.Context
	turn  MockTurn
	index int
}

func (s *mockStream) Recv() (Event, error) {
	if s.ctx.Err() != nil {
		return Event{}, s.ctx.Err()
	}
	if s.index < len(s.turn.Events) {
		if s.turn.Delay > 0 {
			select {
			case <-time.After(s.turn.Delay):
			case <-s.ctx.Done():
				return Event{}, s.ctx.Err()
			}
		}
		event := s.turn.Events[s.index]
		s.index++
		return event, nil
	}
	if s.turn.Err != nil {
		return Event{}, s.turn.Err
	}
	if s.turn.Hang {
		<-s.ctx.Done()
		return Event{}, s.ctx.Err()
	}
	return Event{}, io.EOF
}

func (s *mockStream) Close() error { return nil }

// chunkText splits text into small delta events the way real providers do.
func chunkText(text string) []Event {
	const chunk = 8
	var events []Event
	for i := 0; i < len(text); i += chunk {
		end := i + chunk
		if end > len(text) {
			end = len(text)
		}
		events = append(events, Event{Type: EventTextDelta, Text: text[i:end]})
	}
	return events
}
