package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

const defaultMaxTurns = 10

// getMaxTurns returns the max turns from request, with fallback to default.
func getMaxTurns(req Request) int {
	if req.MaxTurns > 0 {
		return req.MaxTurns
	}
	return defaultMaxTurns
}

// Engine orchestrates provider turns and external tool execution. One model
// turn is streamed, teed into live delivery and aggregation, and once the
// turn is fully observed the Engine either executes the requested tools and
// issues a follow-up turn or terminates with the final answer.
//
// An Engine is safe for concurrent use: each conversation owns its own
// loop state and nothing is shared between in-flight calls.
type Engine struct {
	provider Provider
	tools    *ToolRegistry
	bridge   *Bridge

	// allowedTools filters which tools can be executed. If nil, all
	// registered tools are allowed.
	allowedTools map[string]bool
	allowedMu    sync.RWMutex

	// onTurnCompleted is called after each turn with the messages generated
	// during it. Used for incremental conversation persistence.
	onTurnCompleted TurnCompletedCallback
	callbackMu      sync.RWMutex

	requestAdvisors    []RequestAdvisor
	completionAdvisors []CompletionAdvisor
	advisorMu          sync.RWMutex
}

func NewEngine(provider Provider, tools *ToolRegistry) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	e := &Engine{
		provider: provider,
		tools:    tools,
		bridge:   NewBridge(tools),
	}
	e.bridge.SetAllowedFilter(e.IsToolAllowed)
	return e
}

// RegisterTool adds a tool to the engine's registry.
func (e *Engine) RegisterTool(tool Tool) {
	e.tools.Register(tool)
}

// UnregisterTool removes a tool from the engine's registry.
func (e *Engine) UnregisterTool(name string) {
	e.tools.Unregister(name)
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

// SetAllowedTools sets the list of tools that can be executed. When set,
// only tools in this list can run. Pass nil or an empty slice to allow all.
// The list is intersected with registered tools.
func (e *Engine) SetAllowedTools(tools []string) {
	e.allowedMu.Lock()
	defer e.allowedMu.Unlock()

	if len(tools) == 0 {
		e.allowedTools = nil
		return
	}

	e.allowedTools = make(map[string]bool, len(tools))
	for _, name := range tools {
		if _, ok := e.tools.Get(name); ok {
			e.allowedTools[name] = true
		}
	}
}

// IsToolAllowed checks if a tool can be executed under current restrictions.
func (e *Engine) IsToolAllowed(name string) bool {
	e.allowedMu.RLock()
	defer e.allowedMu.RUnlock()

	if e.allowedTools == nil {
		return true
	}
	return e.allowedTools[name]
}

// SetTurnCompletedCallback sets the callback for incremental turn
// persistence. Thread-safe: can be set while a conversation is in flight.
func (e *Engine) SetTurnCompletedCallback(cb TurnCompletedCallback) {
	e.callbackMu.Lock()
	e.onTurnCompleted = cb
	e.callbackMu.Unlock()
}

func (e *Engine) getCallback() TurnCompletedCallback {
	e.callbackMu.RLock()
	cb := e.onTurnCompleted
	e.callbackMu.RUnlock()
	return cb
}

// AddRequestAdvisor appends a pre-turn request transform.
func (e *Engine) AddRequestAdvisor(a RequestAdvisor) {
	e.advisorMu.Lock()
	e.requestAdvisors = append(e.requestAdvisors, a)
	e.advisorMu.Unlock()
}

// AddCompletionAdvisor appends a post-aggregation completion observer.
func (e *Engine) AddCompletionAdvisor(a CompletionAdvisor) {
	e.advisorMu.Lock()
	e.completionAdvisors = append(e.completionAdvisors, a)
	e.advisorMu.Unlock()
}

func (e *Engine) adviseRequest(ctx context.Context, req *Request) error {
	e.advisorMu.RLock()
	advisors := e.requestAdvisors
	e.advisorMu.RUnlock()
	for _, a := range advisors {
		if err := a(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) adviseCompletion(ctx context.Context, c *Completion) error {
	e.advisorMu.RLock()
	advisors := e.completionAdvisors
	e.advisorMu.RUnlock()
	for _, a := range advisors {
		if err := a(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Stream runs a conversation and returns a stream of events ending in a
// single EventDone, or an error from Recv classified by the taxonomy in
// errors.go. When the request carries tools and the provider supports tool
// calls, the Engine runs its turn loop; otherwise the provider stream is
// passed through as a single turn.
func (e *Engine) Stream(ctx context.Context, req Request) (Stream, error) {
	caps := e.provider.Capabilities()
	useLoop := len(req.Tools) > 0 && caps.ToolCalls && !req.DisableToolExecution

	if useLoop {
		stream := newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
			return e.runLoop(ctx, req, events)
		})
		return WrapDebugStream(req.Debug, stream), nil
	}

	turnReq := req
	turnReq.DisableToolExecution = true
	if err := e.adviseRequest(ctx, &turnReq); err != nil {
		return nil, err
	}
	stream, err := e.provider.Stream(ctx, turnReq)
	if err != nil {
		return nil, &TransportError{Provider: e.provider.Name(), Err: err}
	}
	if cb := e.getCallback(); cb != nil {
		stream = wrapCallbackStream(ctx, stream, cb)
	}
	return WrapDebugStream(req.Debug, stream), nil
}

// iterationState is the loop-local state threaded across turns. One value
// is owned exclusively by one in-flight conversation and is discarded when
// the loop terminates.
type iterationState struct {
	request  Request
	turn     int
	maxTurns int
	filter   FilterMode
}

func (e *Engine) runLoop(ctx context.Context, req Request, events chan<- Event) error {
	state := iterationState{
		request:  req,
		maxTurns: getMaxTurns(req),
		filter:   req.Filter,
	}

	// Copy callback at start so a concurrent setter cannot change the hook
	// mid-conversation.
	callback := e.getCallback()

	for state.turn = 0; state.turn < state.maxTurns; state.turn++ {
		// Each turn gets a fresh request value; the provider never executes
		// tools itself.
		turnReq := state.request
		turnReq.DisableToolExecution = true
		if err := e.adviseRequest(ctx, &turnReq); err != nil {
			return err
		}

		upstream, err := e.provider.Stream(ctx, turnReq)
		if err != nil {
			return &TransportError{Provider: e.provider.Name(), Err: err}
		}

		live, aggregated := Tee(ctx, upstream)

		// Live delivery runs concurrently with aggregation. In buffered
		// mode the turn's events are held until the filter can decide;
		// the decision needs the finish reason, so it cannot be made
		// event by event.
		var held []Event
		deliverDone := make(chan error, 1)
		go func() {
			deliverDone <- e.deliverLive(ctx, live, events, state.filter, &held)
		}()

		result := <-aggregated
		deliverErr := <-deliverDone
		if result.Err != nil {
			return e.classify(result.Err)
		}
		if deliverErr != nil && IsCancellation(deliverErr) {
			return deliverErr
		}

		completion := result.Completion
		// The turn is now fully observed; completion advisors (memory
		// observation among them) run before anything else can react to it.
		if err := e.adviseCompletion(ctx, completion); err != nil {
			return err
		}

		calls := DetectToolCalls(completion)
		if len(calls) == 0 {
			// Terminal answer.
			for _, ev := range held {
				if err := emit(ctx, events, ev); err != nil {
					return err
				}
			}
			if callback != nil {
				_ = callback(ctx, state.turn, []Message{assistantMessage(completion)}, turnMetrics(completion, 0))
			}
			return emit(ctx, events, Event{Type: EventDone, FinishReason: completion.FinishReason})
		}

		// Tool-call turn: under FilterFinal its events stay suppressed.
		held = nil

		var registered, unregistered []ToolCall
		for _, call := range calls {
			if _, ok := e.tools.Get(call.Name); ok {
				registered = append(registered, call)
			} else {
				unregistered = append(unregistered, call)
			}
		}

		// Calls for tools this engine does not know are handed to the
		// caller unexecuted.
		for i := range unregistered {
			call := unregistered[i]
			if err := emit(ctx, events, Event{Type: EventToolCall, Tool: &call}); err != nil {
				return err
			}
		}
		if len(registered) == 0 {
			if callback != nil {
				_ = callback(ctx, state.turn, []Message{assistantMessage(completion)}, turnMetrics(completion, 0))
			}
			return emit(ctx, events, Event{Type: EventDone, FinishReason: completion.FinishReason})
		}

		// The last permitted turn must be the answer; requesting more tool
		// work is a hard failure, reported as such rather than silently
		// truncated.
		if state.turn == state.maxTurns-1 {
			return &IterationLimitError{Limit: state.maxTurns}
		}

		execResult, err := e.bridge.Execute(ctx, registered, events)
		if err != nil {
			return err
		}

		assistantMsg := assistantMessage(completion)
		turnMessages := append([]Message{assistantMsg}, execResult.Results...)

		if execResult.ReturnDirect {
			if callback != nil {
				_ = callback(ctx, state.turn, turnMessages, turnMetrics(completion, len(registered)))
			}
			direct := execResult.Direct
			if direct.Text != "" {
				if err := emit(ctx, events, Event{Type: EventTextDelta, Text: direct.Text}); err != nil {
					return err
				}
			}
			return emit(ctx, events, Event{Type: EventDone, FinishReason: direct.FinishReason})
		}

		// Build the next turn's instructions as a fresh slice; the previous
		// request value is never mutated.
		next := make([]Message, 0, len(state.request.Messages)+len(turnMessages))
		next = append(next, state.request.Messages...)
		next = append(next, turnMessages...)
		state.request.Messages = next

		// The persistence hook must finish before the next turn's request
		// exists: an external store may never observe turn N+1 before
		// turn N.
		if callback != nil {
			_ = callback(ctx, state.turn, turnMessages, turnMetrics(completion, len(registered)))
		}
	}

	return &IterationLimitError{Limit: state.maxTurns}
}

// deliverLive forwards one turn's live events to the caller, or holds them
// when the filter needs the turn's completion before deciding. Per-turn
// terminal events are swallowed; the loop emits a single EventDone when the
// whole conversation ends.
func (e *Engine) deliverLive(ctx context.Context, live Stream, events chan<- Event, filter FilterMode, held *[]Event) error {
	for {
		event, err := live.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if IsCancellation(err) {
				return err
			}
			// The aggregation branch surfaces the same failure; delivery
			// just stops.
			return nil
		}
		if event.Type == EventDone {
			continue
		}
		if filter.Buffered() {
			*held = append(*held, event)
			continue
		}
		if err := emit(ctx, events, event); err != nil {
			return err
		}
	}
}

// Complete runs the same conversation loop without streaming. Providers
// implementing Completer are invoked directly; otherwise their stream is
// drained through the shared accumulator, so both variants produce
// identical completions for equivalent input.
func (e *Engine) Complete(ctx context.Context, req Request) (*Completion, error) {
	caps := e.provider.Capabilities()
	useLoop := len(req.Tools) > 0 && caps.ToolCalls && !req.DisableToolExecution

	callback := e.getCallback()
	maxTurns := getMaxTurns(req)
	if !useLoop {
		maxTurns = 1
	}

	state := iterationState{request: req, maxTurns: maxTurns}

	for state.turn = 0; state.turn < state.maxTurns; state.turn++ {
		turnReq := state.request
		turnReq.DisableToolExecution = true
		if err := e.adviseRequest(ctx, &turnReq); err != nil {
			return nil, err
		}

		completion, err := e.completeTurn(ctx, turnReq)
		if err != nil {
			return nil, err
		}
		if err := e.adviseCompletion(ctx, completion); err != nil {
			return nil, err
		}

		calls := DetectToolCalls(completion)
		var registered []ToolCall
		for _, call := range calls {
			if _, ok := e.tools.Get(call.Name); ok {
				registered = append(registered, call)
			}
		}
		if !useLoop || len(registered) == 0 {
			if callback != nil {
				_ = callback(ctx, state.turn, []Message{assistantMessage(completion)}, turnMetrics(completion, 0))
			}
			return completion, nil
		}

		if state.turn == state.maxTurns-1 {
			return nil, &IterationLimitError{Limit: state.maxTurns}
		}

		execResult, err := e.bridge.Execute(ctx, registered, nil)
		if err != nil {
			return nil, err
		}

		assistantMsg := assistantMessage(completion)
		turnMessages := append([]Message{assistantMsg}, execResult.Results...)
		if execResult.ReturnDirect {
			if callback != nil {
				_ = callback(ctx, state.turn, turnMessages, turnMetrics(completion, len(registered)))
			}
			return execResult.Direct, nil
		}

		next := make([]Message, 0, len(state.request.Messages)+len(turnMessages))
		next = append(next, state.request.Messages...)
		next = append(next, turnMessages...)
		state.request.Messages = next

		if callback != nil {
			_ = callback(ctx, state.turn, turnMessages, turnMetrics(completion, len(registered)))
		}
	}

	return nil, &IterationLimitError{Limit: state.maxTurns}
}

// completeTurn obtains one turn's completion, preferring the provider's
// non-streaming call when it has one.
func (e *Engine) completeTurn(ctx context.Context, req Request) (*Completion, error) {
	if completer, ok := e.provider.(Completer); ok {
		completion, err := completer.Complete(ctx, req)
		if err != nil {
			return nil, e.classify(err)
		}
		return completion, nil
	}

	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		return nil, &TransportError{Provider: e.provider.Name(), Err: err}
	}
	defer stream.Close()

	acc := NewAccumulator()
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, e.classify(err)
		}
		if err := acc.Add(event); err != nil {
			return nil, e.classify(err)
		}
	}
	completion, err := acc.Completion()
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// classify wraps untyped failures as transport errors; taxonomy errors and
// cancellations pass through unchanged.
func (e *Engine) classify(err error) error {
	if err == nil || IsCancellation(err) {
		return err
	}
	var (
		malformed *MalformedStreamError
		toolErr   *ToolExecutionError
		transport *TransportError
		limit     *IterationLimitError
	)
	if errors.As(err, &malformed) || errors.As(err, &toolErr) ||
		errors.As(err, &transport) || errors.As(err, &limit) {
		return err
	}
	return &TransportError{Provider: e.provider.Name(), Err: err}
}

// assistantMessage builds the assistant message recorded for a turn: its
// text plus any tool calls it requested.
func assistantMessage(c *Completion) Message {
	var parts []Part
	if c.Text != "" {
		parts = append(parts, Part{Type: PartText, Text: c.Text})
	}
	for i := range c.ToolCalls {
		call := c.ToolCalls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

func turnMetrics(c *Completion, toolCalls int) TurnMetrics {
	return TurnMetrics{
		InputTokens:  c.Usage.InputTokens,
		OutputTokens: c.Usage.OutputTokens,
		ToolCalls:    toolCalls,
	}
}

// wrapCallbackStream wraps a pass-through stream so the turn callback still
// fires for single-turn conversations.
func wrapCallbackStream(ctx context.Context, inner Stream, cb TurnCompletedCallback) Stream {
	return &callbackStream{
		inner:    inner,
		ctx:      ctx,
		text:     &strings.Builder{},
		callback: cb,
	}
}

// callbackStream accumulates text and usage, firing the callback once on
// stream completion.
type callbackStream struct {
	inner    Stream
	ctx      context.Context
	text     *strings.Builder
	metrics  TurnMetrics
	callback TurnCompletedCallback
	fired    bool
}

func (s *callbackStream) Recv() (Event, error) {
	event, err := s.inner.Recv()
	if err != nil {
		// io.EOF is normal completion; anything else still gets a
		// best-effort save of partial output.
		s.fire()
		return event, err
	}

	if event.Type == EventTextDelta {
		s.text.WriteString(event.Text)
	}
	if event.Type == EventUsage && event.Use != nil {
		s.metrics.InputTokens += event.Use.InputTokens
		s.metrics.OutputTokens += event.Use.OutputTokens
	}

	return event, nil
}

func (s *callbackStream) fire() {
	if s.callback == nil || s.fired || s.text.Len() == 0 {
		return
	}
	s.fired = true
	_ = s.callback(s.ctx, 0, []Message{AssistantText(s.text.String())}, s.metrics)
}

func (s *callbackStream) Close() error {
	s.fire()
	return s.inner.Close()
}
