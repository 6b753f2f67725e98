package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/convoloop/convoloop/internal/llm"
)

// Recorder persists conversation turns incrementally. It records each
// completed turn as it happens, so a crash or cancellation mid-run
// loses at most the turn in flight. Persistence is best-effort:
// failures are logged and never surface to the conversation.
type Recorder struct {
	store    Store
	provider string
	model    string

	mu      sync.Mutex
	conv    *Conversation
	started bool
}

// NewRecorder creates a recorder that writes turns to store.
func NewRecorder(store Store, provider, model string) *Recorder {
	return &Recorder{store: store, provider: provider, model: model}
}

// Resume attaches the recorder to an existing conversation. The returned
// messages restore the conversation context for the next request.
func (r *Recorder) Resume(ctx context.Context, id string) ([]llm.Message, error) {
	conv, err := r.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	stored, err := r.store.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.conv = conv
	r.started = true
	r.mu.Unlock()

	msgs := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, m.ToLLM())
	}
	return msgs, nil
}

// Begin creates the conversation record and persists the initial
// request messages. Call it once before the first request; omitting it
// is fine, the first turn callback creates the record lazily.
func (r *Recorder) Begin(ctx context.Context, messages []llm.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		// Resumed conversation: only the new user messages need recording,
		// the rest are already in the store.
		r.appendLocked(ctx, messages)
		return
	}
	r.conv = &Conversation{
		ID:       uuid.NewString(),
		Summary:  summarize(messages),
		Provider: r.provider,
		Model:    r.model,
		Status:   StatusActive,
	}
	if err := r.store.CreateConversation(ctx, r.conv); err != nil {
		slog.Warn("session create failed", "error", err)
		r.conv = nil
		return
	}
	r.started = true
	r.appendLocked(ctx, messages)
}

// ConversationID returns the active conversation id, or "" before the
// first turn is recorded.
func (r *Recorder) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conv == nil {
		return ""
	}
	return r.conv.ID
}

// Callback returns a turn callback for the engine. The first invocation
// creates the conversation record; each invocation appends the turn's
// messages and accumulates metrics.
func (r *Recorder) Callback() llm.TurnCompletedCallback {
	return func(ctx context.Context, turn int, messages []llm.Message, metrics llm.TurnMetrics) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if !r.started {
			r.conv = &Conversation{
				ID:       uuid.NewString(),
				Summary:  summarize(messages),
				Provider: r.provider,
				Model:    r.model,
				Status:   StatusActive,
			}
			if err := r.store.CreateConversation(ctx, r.conv); err != nil {
				slog.Warn("session create failed", "error", err)
				r.conv = nil
				return nil
			}
			r.started = true
		}

		r.appendLocked(ctx, messages)

		r.conv.LLMTurns++
		r.conv.ToolCalls += metrics.ToolCalls
		r.conv.InputTokens += metrics.InputTokens
		r.conv.OutputTokens += metrics.OutputTokens
		if err := r.store.UpdateConversation(ctx, r.conv); err != nil {
			slog.Warn("session update failed", "error", err)
		}
		return nil
	}
}

// Finish marks the conversation with its terminal status.
func (r *Recorder) Finish(ctx context.Context, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conv == nil {
		return
	}
	r.conv.Status = status
	if err := r.store.UpdateConversation(ctx, r.conv); err != nil {
		slog.Warn("session finish failed", "error", err)
	}
}

// appendLocked persists messages under the held lock. Best-effort.
func (r *Recorder) appendLocked(ctx context.Context, messages []llm.Message) {
	if r.conv == nil || len(messages) == 0 {
		return
	}
	stored := make([]Message, 0, len(messages))
	for _, m := range messages {
		stored = append(stored, NewMessage(r.conv.ID, m))
	}
	if err := r.store.AppendMessages(ctx, r.conv.ID, stored); err != nil {
		slog.Warn("session append failed", "error", err)
	}
}

// summarize extracts the first user message text for the listing view.
func summarize(messages []llm.Message) string {
	for _, m := range messages {
		if m.Role != llm.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.TextContent())
		if text == "" {
			continue
		}
		if len(text) > 120 {
			text = text[:117] + "..."
		}
		return text
	}
	return ""
}
