package session

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Store persists conversations and their messages.
type Store interface {
	// CreateConversation inserts a new conversation record.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation returns a conversation by id, or nil if not found.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// LatestConversation returns the most recently updated conversation,
	// or nil when the store is empty.
	LatestConversation(ctx context.Context) (*Conversation, error)

	// ListConversations returns conversations ordered newest first.
	// A limit <= 0 means no limit.
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)

	// UpdateConversation updates summary, metrics and status.
	UpdateConversation(ctx context.Context, conv *Conversation) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessages appends messages to a conversation in order,
	// assigning sequence numbers.
	AppendMessages(ctx context.Context, conversationID string, msgs []Message) error

	// GetMessages returns a conversation's messages in sequence order.
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)

	// Search returns messages whose text matches the query, best first.
	// A limit of 0 uses a sensible default.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Prune removes conversations older than maxAge and, when maxCount > 0,
	// all but the newest maxCount conversations. Returns the number removed.
	Prune(ctx context.Context, maxAge time.Duration, maxCount int) (int, error)

	Close() error
}

// Config controls session persistence.
type Config struct {
	Enabled    bool
	Path       string // SQLite file path; empty means the default data dir
	MaxAgeDays int    // Prune conversations older than this; 0 disables
	MaxCount   int    // Keep at most this many conversations; 0 disables
}

// NewStore opens the configured store, creating the data directory as
// needed. A disabled config returns a no-op in-memory store so callers
// never need to nil-check.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return NewMemoryStore(), nil
	}
	path := cfg.Path
	if path == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "sessions.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return NewSQLiteStore(path)
}

func dataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "convoloop"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "convoloop"), nil
}
