// Package redis provides a Redis-backed session turn store for working
// memory. Each session's window lives in one Redis list of JSON-encoded
// turns under a configurable key prefix, with the session TTL applied to the
// whole list. Suitable when several processes share one working memory.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/becomeliminal/memtier/memory"
)

const defaultKeyPrefix = "memtier:working"

// Store implements memory.SessionStore on top of a Redis list per session.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default: "memtier:working").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.keyPrefix = prefix
	}
}

// New creates a Redis-backed session store. The client is shared and not
// closed by the store.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(session string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, session)
}

// Turns returns the stored window for a session, oldest first. A missing or
// expired key yields an empty slice.
func (s *Store) Turns(ctx context.Context, session string) ([]memory.Turn, error) {
	items, err := s.client.LRange(ctx, s.key(session), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("lrange %s: %w", s.key(session), err)
	}

	turns := make([]memory.Turn, 0, len(items))
	for _, item := range items {
		var t memory.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// ReplaceTurns atomically rewrites the session list and resets its TTL using
// a transactional pipeline (DEL + RPUSH + EXPIRE run as one MULTI/EXEC).
func (s *Store) ReplaceTurns(ctx context.Context, session string, turns []memory.Turn, ttl time.Duration) error {
	key := s.key(session)

	encoded := make([]any, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		encoded = append(encoded, data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(encoded) > 0 {
			pipe.RPush(ctx, key, encoded...)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// Clear removes the session list immediately.
func (s *Store) Clear(ctx context.Context, session string) error {
	if err := s.client.Del(ctx, s.key(session)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.key(session), err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
