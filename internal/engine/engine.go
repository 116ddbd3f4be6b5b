// Package engine assembles the conversation store, session manager and
// dispatcher behind one explicit context object. Nothing here is a process
// global: independent engines (tests, multiple profiles) can coexist.
package engine

import (
	"context"
	"time"

	"github.com/avelin/chatter/internal/chat"
	"github.com/avelin/chatter/internal/session"
	"github.com/avelin/chatter/internal/store"
	"github.com/avelin/chatter/internal/transport"
	"github.com/rs/zerolog"
)

// Options tunes the engine.
type Options struct {
	// HistoryLimit caps the rolling history replayed on anonymous sends.
	HistoryLimit int

	// Send queue sizing; zero values use the queue defaults.
	QueueShards    int
	QueueSize      int
	EnqueueTimeout time.Duration
}

// Engine owns the client-side state of the chat application.
type Engine struct {
	db            store.Store
	sessions      *session.Manager
	conversations *chat.Store
	dispatcher    *chat.Dispatcher
	log           zerolog.Logger
}

// New wires an engine. The durable store is owned by the engine from here
// on; Close releases it.
func New(db store.Store, api transport.API, opts Options, log zerolog.Logger) *Engine {
	sessions := session.NewManager(api, db, log)
	conversations := chat.NewStore(db, log)
	dispatcher := chat.NewDispatcher(conversations, sessions, api, chat.DispatcherConfig{
		HistoryLimit:   opts.HistoryLimit,
		Shards:         opts.QueueShards,
		QueueSize:      opts.QueueSize,
		EnqueueTimeout: opts.EnqueueTimeout,
	}, log)

	return &Engine{
		db:            db,
		sessions:      sessions,
		conversations: conversations,
		dispatcher:    dispatcher,
		log:           log,
	}
}

// Init rehydrates persisted state: conversations synchronously, credentials
// optimistically with a background token probe.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.conversations.Init(ctx); err != nil {
		return err
	}
	e.sessions.Initialize(ctx)
	return nil
}

// Sessions exposes the session manager.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Conversations exposes the conversation store.
func (e *Engine) Conversations() *chat.Store { return e.conversations }

// SendMessage dispatches one chat turn for the given conversation.
func (e *Engine) SendMessage(ctx context.Context, conversationID, text string) error {
	return e.dispatcher.Send(ctx, conversationID, text)
}

// Flush waits for every in-flight send of the conversation to resolve.
func (e *Engine) Flush(ctx context.Context, conversationID string) error {
	return e.dispatcher.Flush(ctx, conversationID)
}

// Close drains the send queue and releases the durable store.
func (e *Engine) Close() error {
	e.dispatcher.Close()
	return e.db.Close()
}
