// Package chat owns the conversation set and orchestrates message sends
// against the remote service.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/avelin/chatter/internal/domain"
	"github.com/avelin/chatter/internal/metrics"
	"github.com/avelin/chatter/internal/store"
	"github.com/avelin/chatter/internal/transport"
	"github.com/rs/zerolog"
)

// Store owns the authoritative in-memory conversation set. Reads always
// serve the in-memory copy; durable writes are best-effort and never block
// or fail an operation.
type Store struct {
	mu  sync.Mutex
	set domain.ConversationSet
	db  store.Store
	log zerolog.Logger
}

// NewStore creates an empty store backed by db.
func NewStore(db store.Store, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "conversations").Logger(),
	}
}

// Init loads the persisted set, repairing a dangling active id, and creates
// one fresh default conversation when nothing was persisted.
func (s *Store) Init(ctx context.Context) error {
	raw, err := s.db.Load(ctx, store.KeyConversations)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	s.mu.Lock()
	if err == nil {
		if uerr := json.Unmarshal(raw, &s.set); uerr != nil {
			s.log.Warn().Err(uerr).Msg("persisted conversations unreadable, starting fresh")
			s.set = domain.ConversationSet{}
		}
	}

	if len(s.set.Conversations) == 0 {
		conv := domain.NewConversation("")
		s.set.Conversations = []*domain.Conversation{conv}
		s.set.ActiveID = conv.ID
	} else if s.indexOf(s.set.ActiveID) < 0 {
		// The persisted active id vanished; promote the first member.
		s.set.ActiveID = s.set.Conversations[0].ID
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return nil
}

// Create adds a new empty conversation and makes it active.
func (s *Store) Create(ctx context.Context, title string) *domain.Conversation {
	conv := domain.NewConversation(title)

	s.mu.Lock()
	s.set.Conversations = append(s.set.Conversations, conv)
	s.set.ActiveID = conv.ID
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return conv.Clone()
}

// Switch makes id the active conversation. Unknown ids are a no-op.
func (s *Store) Switch(ctx context.Context, id string) {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return
	}
	s.set.ActiveID = id
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// Delete removes id. When it was active, the first remaining conversation is
// promoted, or a fresh one is created if none remain, atomically, so there
// is no observable state without an active conversation.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.set.Conversations = append(s.set.Conversations[:idx], s.set.Conversations[idx+1:]...)
	if s.set.ActiveID == id {
		if len(s.set.Conversations) == 0 {
			conv := domain.NewConversation("")
			s.set.Conversations = []*domain.Conversation{conv}
			s.set.ActiveID = conv.ID
		} else {
			s.set.ActiveID = s.set.Conversations[0].ID
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// Rename sets an explicit title. Unknown ids are a no-op.
func (s *Store) Rename(ctx context.Context, id, title string) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.set.Conversations[idx].Rename(title)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// Search returns the conversations whose title or message content contains
// the query, case-insensitively, in original set order. The empty query
// returns everything.
func (s *Store) Search(query string) []*domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Conversation, 0, len(s.set.Conversations))
	for _, c := range s.set.Conversations {
		if c.Matches(query) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Conversations returns a snapshot of the full set in order.
func (s *Store) Conversations() []*domain.Conversation {
	return s.Search("")
}

// Active returns the active conversation.
func (s *Store) Active() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(s.set.ActiveID)
	if idx < 0 {
		return nil
	}
	return s.set.Conversations[idx].Clone()
}

// ActiveID returns the active conversation id.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.ActiveID
}

// Get returns the conversation with the given id, or nil.
func (s *Store) Get(id string) *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}
	return s.set.Conversations[idx].Clone()
}

// Stats summarizes the conversation set.
type Stats struct {
	TotalConversations             int     `json:"total_conversations"`
	TotalMessages                  int     `json:"total_messages"`
	AverageMessagesPerConversation float64 `json:"average_messages_per_conversation"`
	OldestConversation             string  `json:"oldest_conversation"`
	NewestConversation             string  `json:"newest_conversation"`
}

// GetStats computes statistics over the full set ordered by creation time.
// The average is 0 when there are no conversations.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalConversations: len(s.set.Conversations)}
	if st.TotalConversations == 0 {
		return st
	}

	oldest := s.set.Conversations[0]
	newest := s.set.Conversations[0]
	for _, c := range s.set.Conversations {
		st.TotalMessages += len(c.Messages)
		if c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
		if c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	avg := float64(st.TotalMessages) / float64(st.TotalConversations)
	st.AverageMessagesPerConversation = math.Round(avg*10) / 10
	st.OldestConversation = oldest.Title
	st.NewestConversation = newest.Title
	return st
}

// --------------------------------------------------------------------
// Dispatcher hooks. Each applies its mutation to the conversation inside
// the set, so the set and the visible message list never diverge.
// --------------------------------------------------------------------

// appendUserMessage appends the optimistic echo, marks the conversation
// awaiting a reply and clears any previous error. Returns false when the
// conversation does not exist.
func (s *Store) appendUserMessage(ctx context.Context, id string, msg domain.Message) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	conv := s.set.Conversations[idx]
	conv.Append(msg)
	conv.AwaitingReply = true
	conv.LastError = ""
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return true
}

// completeSend appends the assistant reply and clears the awaiting flag. The
// reply is discarded when the conversation was deleted meanwhile.
func (s *Store) completeSend(ctx context.Context, id string, msg domain.Message) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		s.log.Debug().Str("conversation", id).Msg("reply discarded, conversation gone")
		return
	}
	conv := s.set.Conversations[idx]
	conv.Append(msg)
	conv.AwaitingReply = false
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// failSend records a conversation-level error and clears the awaiting flag.
// The optimistic user message is never rolled back.
func (s *Store) failSend(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return
	}
	conv := s.set.Conversations[idx]
	conv.AwaitingReply = false
	conv.LastError = message
}

// history returns up to limit trailing turns of the conversation, oldest
// first, for the stateless anonymous transport.
func (s *Store) history(id string, limit int) []transport.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}
	msgs := s.set.Conversations[idx].Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	turns := make([]transport.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, transport.ChatTurn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}

func (s *Store) indexOf(id string) int {
	for i, c := range s.set.Conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// snapshotLocked marshals the set for persistence. Transient flags carry
// json:"-" tags and never reach storage.
func (s *Store) snapshotLocked() []byte {
	raw, err := json.Marshal(s.set)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to marshal conversation set")
		return nil
	}
	return raw
}

// persist writes the snapshot. Failures are logged warnings; the in-memory
// set stays authoritative for the process lifetime.
func (s *Store) persist(ctx context.Context, snapshot []byte) {
	if snapshot == nil {
		return
	}
	if err := s.db.Save(ctx, store.KeyConversations, snapshot); err != nil {
		metrics.PersistenceFailuresTotal.Inc()
		s.log.Warn().Err(err).Msg("failed to persist conversations")
	}
}
