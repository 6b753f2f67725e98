package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It backs disabled persistence and
// tests; contents are lost on Close.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	nextMessageID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		nextMessageID: 1,
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	if conv.Status == "" {
		conv.Status = StatusActive
	}
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (s *MemoryStore) LatestConversation(_ context.Context) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Conversation
	for _, conv := range s.conversations {
		if latest == nil || conv.UpdatedAt.After(latest.UpdatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, limit int) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		results = append(results, *conv)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) UpdateConversation(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; !ok {
		return fmt.Errorf("conversation not found: %s", conv.ID)
	}
	conv.UpdatedAt = time.Now()
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("conversation not found: %s", id)
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AppendMessages(_ context.Context, conversationID string, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.messages[conversationID]
	next := len(existing)
	for i := range msgs {
		msg := msgs[i]
		msg.ConversationID = conversationID
		msg.Sequence = next
		msg.ID = s.nextMessageID
		s.nextMessageID++
		next++
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		existing = append(existing, msg)
	}
	s.messages[conversationID] = existing
	if conv, ok := s.conversations[conversationID]; ok {
		conv.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) GetMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Search does a case-insensitive substring scan. Good enough for the
// in-memory store; the SQLite store does real full-text search.
func (s *MemoryStore) Search(_ context.Context, query string, limit int) ([]SearchResult, error) {
	if limit == 0 {
		limit = 20
	}
	needle := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()
	var results []SearchResult
	for convID, msgs := range s.messages {
		conv := s.conversations[convID]
		for _, msg := range msgs {
			if !strings.Contains(strings.ToLower(msg.TextContent), needle) {
				continue
			}
			r := SearchResult{
				ConversationID: convID,
				MessageID:      msg.ID,
				Snippet:        msg.TextContent,
				CreatedAt:      msg.CreatedAt,
			}
			if conv != nil {
				r.Summary = conv.Summary
				r.Provider = conv.Provider
			}
			results = append(results, r)
			if len(results) >= limit {
				return results, nil
			}
		}
	}
	return results, nil
}

func (s *MemoryStore) Prune(_ context.Context, maxAge time.Duration, maxCount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		for id, conv := range s.conversations {
			if conv.UpdatedAt.Before(cutoff) {
				delete(s.conversations, id)
				delete(s.messages, id)
				removed++
			}
		}
	}

	if maxCount > 0 && len(s.conversations) > maxCount {
		ids := make([]string, 0, len(s.conversations))
		for id := range s.conversations {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return s.conversations[ids[i]].UpdatedAt.After(s.conversations[ids[j]].UpdatedAt)
		})
		for _, id := range ids[maxCount:] {
			delete(s.conversations, id)
			delete(s.messages, id)
			removed++
		}
	}

	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
