package domain

import "time"

// MessageRole distinguishes who produced a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Conversation is a question-answering session owned by a single user.
// History is persisted per conversation, never shared across sessions.
type Conversation struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn of a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}
