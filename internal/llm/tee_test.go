package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/goleak"
)

// replayStream plays a fixed event slice then EOF. Unlike mockStream it
// has no context, so tests control lifetime through Tee alone.
type replayStream struct {
	events []Event
	index  int
	closed bool
}

func (s *replayStream) Recv() (Event, error) {
	if s.index >= len(s.events) {
		return Event{}, io.EOF
	}
	event := s.events[s.index]
	s.index++
	return event, nil
}

func (s *replayStream) Close() error {
	s.closed = true
	return nil
}

func TestTeeDeliversBothBranches(t *testing.T) {
	upstream := &replayStream{events: append(
		chunkText("hello world"),
		Event{Type: EventUsage, Use: &Usage{InputTokens: 3, OutputTokens: 4}},
		Event{Type: EventDone, FinishReason: FinishStop},
	)}

	live, future := Tee(context.Background(), upstream)
	defer live.Close()

	var text string
	for {
		event, err := live.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if event.Type == EventTextDelta {
			text += event.Text
		}
	}
	if text != "hello world" {
		t.Errorf("live text = %q, want %q", text, "hello world")
	}

	result := <-future
	if result.Err != nil {
		t.Fatalf("future error = %v", result.Err)
	}
	if result.Completion.Text != "hello world" {
		t.Errorf("completion text = %q, want %q", result.Completion.Text, "hello world")
	}
	if result.Completion.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", result.Completion.Usage)
	}
	if !upstream.closed {
		t.Error("upstream not closed after drain")
	}
}

func TestTeeFutureResolvesWithoutLiveConsumer(t *testing.T) {
	upstream := &replayStream{events: []Event{
		{Type: EventTextDelta, Text: "answer"},
		{Type: EventDone, FinishReason: FinishStop},
	}}

	live, future := Tee(context.Background(), upstream)
	defer live.Close()

	// Nobody reads the live branch.
	select {
	case result := <-future:
		if result.Err != nil {
			t.Fatalf("future error = %v", result.Err)
		}
		if result.Completion.Text != "answer" {
			t.Errorf("completion text = %q, want %q", result.Completion.Text, "answer")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("future did not resolve without a live consumer")
	}
}

func TestTeeEOFWithoutTerminalEventIsMalformed(t *testing.T) {
	upstream := &replayStream{events: chunkText("truncated")}

	live, future := Tee(context.Background(), upstream)
	defer live.Close()

	for {
		if _, err := live.Recv(); err != nil {
			break
		}
	}

	result := <-future
	var malformed *MalformedStreamError
	if !errors.As(result.Err, &malformed) {
		t.Fatalf("future error = %v, want MalformedStreamError", result.Err)
	}
	if result.Completion != nil {
		t.Error("partial completion leaked from a truncated stream")
	}
}

func TestTeeCancellationResolvesFutureAndLeaksNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	upstream := &mockStream{ctx: ctx, turn: MockTurn{
		Events: []Event{{Type: EventTextDelta, Text: "never finishes"}},
		Hang:   true,
	}}

	live, future := Tee(ctx, upstream)

	if _, err := live.Recv(); err != nil {
		t.Fatalf("first Recv() error = %v", err)
	}

	cancel()
	live.Close()

	select {
	case result := <-future:
		if !IsCancellation(result.Err) {
			t.Errorf("future error = %v, want cancellation", result.Err)
		}
		if result.Completion != nil {
			t.Error("partial completion leaked after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("future did not resolve after cancellation")
	}
}

func TestTeeUpstreamErrorPropagates(t *testing.T) {
	upstreamErr := errors.New("connection reset")
	ctx := context.Background()
	upstream := &mockStream{ctx: ctx, turn: MockTurn{
		Events: []Event{{Type: EventTextDelta, Text: "par"}},
		Err:    upstreamErr,
	}}

	live, future := Tee(ctx, upstream)
	defer live.Close()

	for {
		if _, err := live.Recv(); err != nil {
			break
		}
	}

	result := <-future
	if !errors.Is(result.Err, upstreamErr) {
		t.Errorf("future error = %v, want %v", result.Err, upstreamErr)
	}
}

// Property: for any valid turn, the live branch preserves event order
// exactly and the future's completion equals the fold of the input.
func TestTeeOrderingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("live branch preserves order and fold matches", prop.ForAll(
		func(chunks []string) bool {
			var events []Event
			var want string
			for _, chunk := range chunks {
				events = append(events, Event{Type: EventTextDelta, Text: chunk})
				want += chunk
			}
			events = append(events, Event{Type: EventDone, FinishReason: FinishStop})

			live, future := Tee(context.Background(), &replayStream{events: events})
			defer live.Close()

			var got []Event
			for {
				event, err := live.Recv()
				if err == io.EOF {
					break
				}
				if err != nil {
					return false
				}
				got = append(got, event)
			}

			if len(got) != len(events) {
				return false
			}
			for i := range got {
				if got[i].Type != events[i].Type || got[i].Text != events[i].Text {
					return false
				}
			}

			result := <-future
			return result.Err == nil && result.Completion.Text == want
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
