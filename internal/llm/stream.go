package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer function to the Stream interface. The
// producer runs in its own goroutine and sends events on the channel; when
// it returns, the stream ends with io.EOF (nil return) or the error.
// Closing the stream cancels the producer's context and drains any
// buffered events so the producer can exit.
type eventStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	mu  sync.Mutex
	err error // Producer's return value, set once the channel is closed
}

func newEventStream(ctx context.Context, run func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
	}
	go func() {
		err := run(ctx, s.events)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	select {
	case event, ok := <-s.events:
		if !ok {
			s.mu.Lock()
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return Event{}, err
			}
			return Event{}, io.EOF
		}
		return event, nil
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	}
}

func (s *eventStream) Close() error {
	s.cancel()
	// Unblock a producer waiting on a full channel.
	go func() {
		for range s.events {
		}
	}()
	return nil
}

// emit sends an event unless the context is cancelled. Producers use it so
// a departed consumer cannot wedge them on a full channel.
func emit(ctx context.Context, events chan<- Event, event Event) error {
	select {
	case events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
