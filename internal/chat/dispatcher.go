package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avelin/chatter/internal/domain"
	"github.com/avelin/chatter/internal/metrics"
	"github.com/avelin/chatter/internal/transport"
	"github.com/rs/zerolog"
)

// CredentialSource is the capability the dispatcher receives from the
// session manager: a non-blocking token read plus the forced-logout hook.
// The dispatcher never stores a token.
type CredentialSource interface {
	AccessToken() (string, bool)
	Invalidate(ctx context.Context)
}

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	// HistoryLimit caps the rolling history replayed on the anonymous
	// path. Zero means no cap.
	HistoryLimit int

	Shards         int
	QueueSize      int
	EnqueueTimeout time.Duration
}

// Dispatcher orchestrates a single send: optimistic local echo, transport
// routing, failure classification and reconciliation back into the store.
// Sends for one conversation run strictly in issue order.
type Dispatcher struct {
	store *Store
	creds CredentialSource
	api   transport.API
	queue *sendQueue
	log   zerolog.Logger

	historyLimit int
}

// NewDispatcher wires the dispatcher and starts its send queue.
func NewDispatcher(s *Store, creds CredentialSource, api transport.API, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store: s,
		creds: creds,
		api:   api,
		queue: newSendQueue(queueConfig{
			shards:         cfg.Shards,
			queueSize:      cfg.QueueSize,
			enqueueTimeout: cfg.EnqueueTimeout,
		}),
		log:          log.With().Str("component", "dispatcher").Logger(),
		historyLimit: cfg.HistoryLimit,
	}
}

// Send appends the user message synchronously and enqueues the network call.
// The returned error only covers enqueue problems (unknown conversation,
// queue closed or full); remote failures reconcile into the conversation.
func (d *Dispatcher) Send(ctx context.Context, conversationID, text string) error {
	userMsg := domain.NewUserMessage(text)
	if !d.store.appendUserMessage(ctx, conversationID, userMsg) {
		return fmt.Errorf("unknown conversation %q", conversationID)
	}

	// Route on credential availability, read at call time.
	token, authenticated := d.creds.AccessToken()

	var history []transport.ChatTurn
	if !authenticated {
		// The anonymous transport is stateless server-side and needs
		// the rolling history, including the message just appended.
		history = d.store.history(conversationID, d.historyLimit)
	}

	err := d.queue.submit(ctx, conversationID, func(ctx context.Context) {
		d.deliver(ctx, conversationID, text, token, authenticated, history)
	})
	if err != nil {
		d.store.failSend(conversationID, domain.GenericConnectivityMessage)
		return err
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, conversationID, text, token string, authenticated bool, history []transport.ChatTurn) {
	var reply *transport.ChatReply
	var err error
	if authenticated {
		metrics.SendsTotal.WithLabelValues("authenticated").Inc()
		reply, err = d.api.ChatProtected(ctx, token, conversationID, text)
	} else {
		metrics.SendsTotal.WithLabelValues("anonymous").Inc()
		reply, err = d.api.ChatAnonymous(ctx, history)
	}

	if err != nil {
		d.reconcileFailure(ctx, conversationID, err)
		return
	}

	msg := domain.NewAssistantMessage(reply.Content, reply.Timestamp, reply.Sources)
	d.store.completeSend(ctx, conversationID, msg)
}

// reconcileFailure classifies a failed send. A 401 clears credentials (a
// forced logout that leaves conversation data untouched) and is terminal; no
// automatic retry exists for any failure; the user must resend.
func (d *Dispatcher) reconcileFailure(ctx context.Context, conversationID string, err error) {
	if errors.Is(err, domain.ErrUnauthorized) {
		metrics.SendFailuresTotal.WithLabelValues("unauthorized").Inc()
		d.log.Info().Str("conversation", conversationID).Msg("send rejected with 401, clearing credentials")
		d.creds.Invalidate(ctx)
		d.store.failSend(conversationID, domain.SessionExpiredMessage)
		return
	}

	metrics.SendFailuresTotal.WithLabelValues("transport").Inc()
	message := domain.GenericConnectivityMessage
	var terr *domain.TransportError
	if errors.As(err, &terr) {
		message = terr.Message
	}
	d.log.Warn().Err(err).Str("conversation", conversationID).Msg("send failed")
	d.store.failSend(conversationID, message)
}

// Flush blocks until every send already issued for the conversation has
// resolved.
func (d *Dispatcher) Flush(ctx context.Context, conversationID string) error {
	return d.queue.barrier(ctx, conversationID)
}

// Close stops the send queue after draining queued work.
func (d *Dispatcher) Close() {
	d.queue.stop()
}
