// Package redis implements store.Store on a Redis instance. Entries are
// namespaced so several clients can share one server.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/avelin/chatter/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "chatter:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store persists entries under the chatter: prefix.
type Store struct {
	rdb *goredis.Client
}

// Open connects and verifies the server is reachable.
func Open(ctx context.Context, opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	// No TTL: this is durable state, not a cache.
	if err := s.rdb.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error { return s.rdb.Close() }
