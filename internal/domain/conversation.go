package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTitle is given to conversations created without an explicit title.
	DefaultTitle = "Nouvelle conversation"

	// titleMaxLen caps titles derived from the first user message.
	titleMaxLen = 50
)

// Conversation is a named, ordered thread of messages. The message slice is
// strictly append-ordered by creation time and UpdatedAt is refreshed on
// every mutation.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`

	// Transient, never persisted: set while a reply is pending, and the
	// last send error attached to this conversation.
	AwaitingReply bool   `json:"-"`
	LastError     string `json:"-"`
}

// NewConversation creates an empty conversation with a generated id.
func NewConversation(title string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now()
	return &Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]Message, 0),
	}
}

// Append adds a message and refreshes UpdatedAt. The first user message also
// derives the title when it was never explicitly set.
func (c *Conversation) Append(msg Message) {
	if msg.Role == RoleUser && len(c.Messages) == 0 && c.Title == DefaultTitle {
		c.Title = DeriveTitle(msg.Content)
	}
	c.Messages = append(c.Messages, msg)
	c.touch()
}

// Rename sets an explicit title.
func (c *Conversation) Rename(title string) {
	c.Title = title
	c.touch()
}

// Matches reports whether the query occurs, case-insensitively, in the title
// or in any message content. The empty query matches everything.
func (c *Conversation) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(c.Title), q) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can read without holding store locks.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

func (c *Conversation) touch() {
	now := time.Now()
	if !now.After(c.UpdatedAt) {
		// Wall clock did not move between mutations; keep UpdatedAt
		// strictly increasing anyway.
		now = c.UpdatedAt.Add(time.Nanosecond)
	}
	c.UpdatedAt = now
}

// DeriveTitle builds a title from the first user message: its first 50
// characters followed by an ellipsis marker.
func DeriveTitle(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > titleMaxLen {
		runes = runes[:titleMaxLen]
	}
	return string(runes) + "..."
}

// ConversationSet is the persisted shape of the conversation store: the full
// set of threads plus the active id. Invariant: ActiveID references a member
// whenever the set is non-empty.
type ConversationSet struct {
	Conversations []*Conversation `json:"conversations"`
	ActiveID      string          `json:"active_id"`
}
