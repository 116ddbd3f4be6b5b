// Package store defines the durable key/value adapter used to persist the
// conversation set and the credential entries across process restarts.
package store

import (
	"context"
	"errors"
)

// Persisted state layout. One entry holds the serialized conversation set,
// three entries hold the credential parts.
const (
	KeyConversations = "conversations"
	KeyUser          = "user"
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
)

// ErrNotFound reports an absent key.
var ErrNotFound = errors.New("store: key not found")

// Store is the durable adapter contract. Save failures are non-fatal for
// callers: the in-memory state stays authoritative for the process lifetime.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
