package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Conversation is an owned sequence of chat turns. The owner is fixed
// at creation and never changes.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn's content. Messages are append-only: they are
// never edited or deleted by the application.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ToolCalls      string    `json:"tool_calls,omitempty"` // JSON-encoded tool call record, if any
	CreatedAt      time.Time `json:"created_at"`
}

// CreateConversation creates a new conversation owned by ownerID.
func (s *Store) CreateConversation(ownerID string) (*Conversation, error) {
	now := time.Now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conversations (id, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), ownerID, now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return &Conversation{ID: id.String(), OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}, nil
}

// GetConversation returns a conversation by id, owner-filtered.
// Returns ErrNotFound when it does not exist or belongs to another
// owner.
func (s *Store) GetConversation(ownerID, conversationID string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, created_at, updated_at
		FROM conversations
		WHERE id = ? AND owner_id = ?
	`, conversationID, ownerID)

	var c Conversation
	if err := row.Scan(&c.ID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns the owner's conversations, most recently
// updated first.
func (s *Store) ListConversations(ownerID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, owner_id, created_at, updated_at
		FROM conversations
		WHERE owner_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, &c)
	}
	return convs, rows.Err()
}

// AddMessage appends a message to a conversation and bumps the
// conversation's updated_at. The write is committed before return, so
// a crash later in the turn never loses it.
func (s *Store) AddMessage(conversationID, role, content, toolCalls string) (*Message, error) {
	now := time.Now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var tc any
	if toolCalls != "" {
		tc = toolCalls
	}

	_, err = tx.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), conversationID, role, content, tc, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Message{
		ID:             id.String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ToolCalls:      toolCalls,
		CreatedAt:      now,
	}, nil
}

// GetMessages returns all messages for a conversation, oldest first.
func (s *Store) GetMessages(conversationID string) ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, tool_calls, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var tc sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &tc, &m.CreatedAt); err != nil {
			return nil, err
		}
		if tc.Valid {
			m.ToolCalls = tc.String
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
