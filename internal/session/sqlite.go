package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    summary TEXT,
    provider TEXT NOT NULL,
    model TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    llm_turns INTEGER DEFAULT 0,
    tool_calls INTEGER DEFAULT 0,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    status TEXT DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system', 'tool')),
    parts TEXT NOT NULL,
    text_content TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sequence INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_sequence ON messages(conversation_id, sequence);

-- Full-text search over extracted message text
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    text_content,
    content='messages',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, text_content) VALUES (new.id, new.text_content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text_content) VALUES ('delete', old.id, old.text_content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text_content) VALUES ('delete', old.id, old.text_content);
    INSERT INTO messages_fts(rowid, text_content) VALUES (new.id, new.text_content);
END;
`

// NewSQLiteStore opens (or creates) the sessions database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// CreateConversation inserts a new conversation record.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	if conv.Status == "" {
		conv.Status = StatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, summary, provider, model, created_at, updated_at,
		                           llm_turns, tool_calls, input_tokens, output_tokens, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Summary, conv.Provider, conv.Model, conv.CreatedAt, conv.UpdatedAt,
		conv.LLMTurns, conv.ToolCalls, conv.InputTokens, conv.OutputTokens, string(conv.Status))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID, or nil when absent.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, summary, provider, model, created_at, updated_at,
		       llm_turns, tool_calls, input_tokens, output_tokens, status
		FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// LatestConversation retrieves the most recently updated conversation.
func (s *SQLiteStore) LatestConversation(ctx context.Context) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, summary, provider, model, created_at, updated_at,
		       llm_turns, tool_calls, input_tokens, output_tokens, status
		FROM conversations ORDER BY updated_at DESC LIMIT 1`)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var model, status sql.NullString
	err := row.Scan(&conv.ID, &conv.Summary, &conv.Provider, &model,
		&conv.CreatedAt, &conv.UpdatedAt,
		&conv.LLMTurns, &conv.ToolCalls, &conv.InputTokens, &conv.OutputTokens, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	conv.Model = model.String
	conv.Status = Status(status.String)
	return &conv, nil
}

// ListConversations returns conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	query := `
		SELECT id, summary, provider, model, created_at, updated_at,
		       llm_turns, tool_calls, input_tokens, output_tokens, status
		FROM conversations ORDER BY updated_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var conv Conversation
		var model, status sql.NullString
		err := rows.Scan(&conv.ID, &conv.Summary, &conv.Provider, &model,
			&conv.CreatedAt, &conv.UpdatedAt,
			&conv.LLMTurns, &conv.ToolCalls, &conv.InputTokens, &conv.OutputTokens, &status)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.Model = model.String
		conv.Status = Status(status.String)
		results = append(results, conv)
	}
	return results, rows.Err()
}

// UpdateConversation updates summary, metrics, and status.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET summary = ?, model = ?, updated_at = ?,
		       llm_turns = ?, tool_calls = ?, input_tokens = ?, output_tokens = ?, status = ?
		WHERE id = ?`,
		conv.Summary, conv.Model, conv.UpdatedAt,
		conv.LLMTurns, conv.ToolCalls, conv.InputTokens, conv.OutputTokens,
		string(conv.Status), conv.ID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("conversation not found: %s", conv.ID)
	}
	return nil
}

// DeleteConversation removes a conversation and, via cascade, its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

// AppendMessages appends messages in order, allocating sequence numbers
// inside a single transaction.
func (s *SQLiteStore) AppendMessages(ctx context.Context, conversationID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM messages WHERE conversation_id = ?`,
		conversationID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("get max sequence: %w", err)
	}
	next := 0
	if maxSeq.Valid {
		next = int(maxSeq.Int64) + 1
	}

	for i := range msgs {
		msg := &msgs[i]
		msg.ConversationID = conversationID
		msg.Sequence = next
		next++
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}

		partsJSON, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("serialize parts: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, role, parts, text_content, created_at, sequence)
			VALUES (?, ?, ?, ?, ?, ?)`,
			conversationID, string(msg.Role), string(partsJSON), msg.TextContent,
			msg.CreatedAt, msg.Sequence)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		msg.ID, _ = result.LastInsertId()
	}

	_, err = tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?",
		time.Now(), conversationID)
	if err != nil {
		return fmt.Errorf("update conversation timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetMessages retrieves a conversation's messages in sequence order.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, parts, text_content, created_at, sequence
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sequence ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var partsJSON string
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &partsJSON,
			&msg.TextContent, &msg.CreatedAt, &msg.Sequence)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(partsJSON), &msg.Parts); err != nil {
			return nil, fmt.Errorf("deserialize parts: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Search finds conversations whose messages match the query, using FTS5.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit == 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.conversation_id, m.id, c.summary, c.provider,
		       snippet(messages_fts, 0, '**', '**', '...', 32), m.created_at
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ConversationID, &r.MessageID, &r.Summary,
			&r.Provider, &r.Snippet, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Prune removes conversations past the retention limits.
func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration, maxCount int) (int, error) {
	var removed int64

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		result, err := s.db.ExecContext(ctx,
			"DELETE FROM conversations WHERE updated_at < ?", cutoff)
		if err != nil {
			return 0, fmt.Errorf("delete old conversations: %w", err)
		}
		n, _ := result.RowsAffected()
		removed += n
	}

	if maxCount > 0 {
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM conversations WHERE id IN (
				SELECT id FROM conversations
				ORDER BY updated_at DESC
				LIMIT -1 OFFSET ?
			)`, maxCount)
		if err != nil {
			return 0, fmt.Errorf("enforce max count: %w", err)
		}
		n, _ := result.RowsAffected()
		removed += n
	}

	return int(removed), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
