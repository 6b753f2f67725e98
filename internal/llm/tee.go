package llm

import (
	"context"
	"io"
)

// TeeResult carries the folded completion for one turn, or the error that
// ended the turn early.
type TeeResult struct {
	Completion *Completion
	Err        error
}

// Tee subscribes once to upstream and fans its events out to two branches:
// a live Stream that forwards every event as it arrives, and a future that
// resolves with the turn's Completion once the terminal event is observed.
//
// Both branches see every event exactly once and in upstream order. Each
// event is folded into the accumulator before it is offered to the live
// branch, so a slow live consumer can back-pressure upstream but can never
// starve the fold: once the terminal event arrives the future resolves even
// if nobody is reading the live branch.
//
// Cancelling ctx (or closing the live stream) releases the upstream
// subscription and resolves the future with the context error.
func Tee(ctx context.Context, upstream Stream) (Stream, <-chan TeeResult) {
	result := make(chan TeeResult, 1)

	live := newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		defer upstream.Close()

		acc := NewAccumulator()
		resolved := false
		resolve := func(completion *Completion, err error) {
			if resolved {
				return
			}
			resolved = true
			result <- TeeResult{Completion: completion, Err: err}
		}
		defer func() {
			// Upstream ended without a terminal event: cancellation resolves
			// cleanly, anything else is a protocol violation.
			if err := ctx.Err(); err != nil {
				resolve(nil, err)
			} else {
				resolve(nil, &MalformedStreamError{Reason: "stream ended without terminal event"})
			}
		}()

		for {
			event, err := upstream.Recv()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				resolve(nil, err)
				return err
			}

			// Aggregation branch first: the fold must never wait on the
			// live consumer.
			if foldErr := acc.Add(event); foldErr != nil {
				resolve(nil, foldErr)
				return foldErr
			}
			if event.Type == EventDone {
				completion, cErr := acc.Completion()
				resolve(completion, cErr)
			}

			if err := emit(ctx, events, event); err != nil {
				return err
			}
		}
	})

	return live, result
}
