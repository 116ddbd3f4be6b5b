package domain

import "time"

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Source is a retrieval citation attached to an assistant message
type Source struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Message is a single turn in a conversation. Messages are immutable once
// created and append-only within their conversation.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Sources   []Source    `json:"sources,omitempty"`
}

// NewUserMessage creates a user message stamped with the local clock.
func NewUserMessage(content string) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message. A zero ts falls back to
// the local clock (the server timestamp is optional in the chat contract).
func NewAssistantMessage(content string, ts time.Time, sources []Source) Message {
	if ts.IsZero() {
		ts = time.Now()
	}
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: ts,
		Sources:   sources,
	}
}
