// Package session owns the credential lifecycle: loading persisted
// credentials at startup, login/register/logout, and access token refresh.
// No other component ever stores a token; they read one at call time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/avelin/chatter/internal/domain"
	"github.com/avelin/chatter/internal/metrics"
	"github.com/avelin/chatter/internal/store"
	"github.com/avelin/chatter/internal/transport"
	"github.com/rs/zerolog"
)

// Manager is the session state machine. All state transitions happen under
// mu; only network calls run unlocked.
type Manager struct {
	api transport.API
	db  store.Store
	log zerolog.Logger

	mu         sync.Mutex
	state      domain.SessionState
	creds      *domain.Credentials
	sessionErr string

	// refresh is non-nil while a refresh attempt is in flight. Concurrent
	// callers wait on it instead of issuing their own call.
	refresh *refreshFlight

	verifyDone chan struct{}
}

// refreshFlight carries the outcome of one refresh attempt to every caller
// that joined it. err is written before done is closed.
type refreshFlight struct {
	done chan struct{}
	err  error
}

// NewManager creates a manager in the Initializing state.
func NewManager(api transport.API, db store.Store, log zerolog.Logger) *Manager {
	return &Manager{
		api:   api,
		db:    db,
		log:   log.With().Str("component", "session").Logger(),
		state: domain.Initializing,
	}
}

// Initialize loads persisted credentials. Absent credentials resolve to
// Unauthenticated. Present ones resolve to Authenticated optimistically,
// then a background probe verifies the access token and self-heals a stale
// one with a single refresh, falling back to a forced logout.
func (m *Manager) Initialize(ctx context.Context) {
	creds, err := m.loadCredentials(ctx)

	m.mu.Lock()
	if err != nil || creds == nil {
		m.state = domain.Unauthenticated
		m.mu.Unlock()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			m.log.Warn().Err(err).Msg("failed to load persisted credentials")
		}
		return
	}

	m.creds = creds
	m.state = domain.Authenticated
	done := make(chan struct{})
	m.verifyDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.verify(ctx)
	}()
}

// AwaitVerification blocks until the startup token probe launched by
// Initialize has settled. No-op when no probe is running.
func (m *Manager) AwaitVerification() {
	m.mu.Lock()
	done := m.verifyDone
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Manager) verify(ctx context.Context) {
	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()
		return
	}
	token := m.creds.AccessToken
	m.mu.Unlock()

	if err := m.api.Me(ctx, token); err == nil {
		return
	}

	m.log.Info().Msg("persisted access token rejected, attempting refresh")
	if err := m.RefreshAccessToken(ctx); err != nil {
		m.log.Info().Msg("refresh failed, clearing persisted credentials")
		m.clear(ctx, "")
	}
}

// Login authenticates against the remote service and adopts the returned
// credentials on success. Input validation belongs to the calling layer.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.Credentials, error) {
	creds, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.adopt(ctx, creds)
	return creds, nil
}

// Register creates an account, with the same contract as Login.
func (m *Manager) Register(ctx context.Context, profile domain.RegisterProfile) (*domain.Credentials, error) {
	creds, err := m.api.Register(ctx, profile)
	if err != nil {
		return nil, err
	}
	m.adopt(ctx, creds)
	return creds, nil
}

// RefreshAccessToken requests a new access token with the current refresh
// token. At most one attempt runs at a time; concurrent callers share its
// outcome. On failure existing state is left untouched; the caller decides
// whether to log out.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	m.mu.Lock()
	if m.refresh != nil {
		flight := m.refresh
		m.mu.Unlock()
		<-flight.done
		return flight.err
	}

	refreshToken := ""
	if m.creds != nil {
		refreshToken = m.creds.RefreshToken
	}
	flight := &refreshFlight{done: make(chan struct{})}
	m.refresh = flight
	prev := m.state
	m.state = domain.Refreshing
	m.mu.Unlock()

	if refreshToken == "" {
		// Fall back to durable storage; state may not be hydrated yet.
		if raw, err := m.db.Load(ctx, store.KeyRefreshToken); err == nil {
			refreshToken = string(raw)
		}
	}

	flight.err = m.doRefresh(ctx, refreshToken, prev)

	m.mu.Lock()
	m.refresh = nil
	m.mu.Unlock()
	close(flight.done)
	return flight.err
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string, prev domain.SessionState) error {
	restore := func() {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
	}

	if refreshToken == "" {
		restore()
		metrics.RefreshAttemptsTotal.WithLabelValues("failure").Inc()
		return domain.NewAuthError("no refresh token available")
	}

	accessToken, user, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		restore()
		metrics.RefreshAttemptsTotal.WithLabelValues("failure").Inc()
		return err
	}

	m.mu.Lock()
	if m.creds == nil {
		m.creds = &domain.Credentials{RefreshToken: refreshToken}
	}
	m.creds.AccessToken = accessToken
	if user != nil {
		m.creds.User = *user
	}
	creds := *m.creds
	m.state = domain.Authenticated
	m.mu.Unlock()

	m.persistCredentials(ctx, &creds)
	metrics.RefreshAttemptsTotal.WithLabelValues("success").Inc()
	return nil
}

// Logout clears durable storage and resets to Unauthenticated. It always
// succeeds and has no network side effect.
func (m *Manager) Logout(ctx context.Context) {
	m.clear(ctx, "")
}

// Invalidate is the forced logout taken when a protected call reports 401:
// credentials are cleared and a session-level error is recorded, distinct
// from any per-conversation error.
func (m *Manager) Invalidate(ctx context.Context) {
	m.clear(ctx, domain.SessionExpiredMessage)
}

// AccessToken returns the current access token without blocking. ok is false
// while unauthenticated.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil || m.creds.AccessToken == "" {
		return "", false
	}
	return m.creds.AccessToken, true
}

// State returns the current session state.
func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns the authenticated identity, or nil.
func (m *Manager) CurrentUser() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil
	}
	u := m.creds.User
	return &u
}

// SessionError returns the session-level error message, empty when none.
func (m *Manager) SessionError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionErr
}

func (m *Manager) adopt(ctx context.Context, creds *domain.Credentials) {
	m.mu.Lock()
	m.creds = creds
	m.state = domain.Authenticated
	m.sessionErr = ""
	m.mu.Unlock()
	m.persistCredentials(ctx, creds)
}

func (m *Manager) clear(ctx context.Context, sessionErr string) {
	m.mu.Lock()
	m.creds = nil
	m.state = domain.Unauthenticated
	m.sessionErr = sessionErr
	m.mu.Unlock()

	for _, key := range []string{store.KeyUser, store.KeyAccessToken, store.KeyRefreshToken} {
		if err := m.db.Delete(ctx, key); err != nil {
			metrics.PersistenceFailuresTotal.Inc()
			m.log.Warn().Err(err).Str("key", key).Msg("failed to clear persisted credential")
		}
	}
}

func (m *Manager) loadCredentials(ctx context.Context) (*domain.Credentials, error) {
	rawUser, err := m.db.Load(ctx, store.KeyUser)
	if err != nil {
		return nil, err
	}
	access, err := m.db.Load(ctx, store.KeyAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := m.db.Load(ctx, store.KeyRefreshToken)
	if err != nil {
		return nil, err
	}

	var user domain.User
	if err := json.Unmarshal(rawUser, &user); err != nil {
		return nil, err
	}
	return &domain.Credentials{
		User:         user,
		AccessToken:  string(access),
		RefreshToken: string(refresh),
	}, nil
}

// persistCredentials writes the three credential entries. Failures are
// logged warnings; in-memory state stays authoritative.
func (m *Manager) persistCredentials(ctx context.Context, creds *domain.Credentials) {
	rawUser, err := json.Marshal(creds.User)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to marshal user")
		return
	}
	entries := map[string][]byte{
		store.KeyUser:         rawUser,
		store.KeyAccessToken:  []byte(creds.AccessToken),
		store.KeyRefreshToken: []byte(creds.RefreshToken),
	}
	for key, value := range entries {
		if err := m.db.Save(ctx, key, value); err != nil {
			metrics.PersistenceFailuresTotal.Inc()
			m.log.Warn().Err(err).Str("key", key).Msg("failed to persist credential")
		}
	}
}
