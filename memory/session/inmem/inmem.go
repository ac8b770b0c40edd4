// Package inmem provides an in-process session turn store for working
// memory, backed by a TTL cache. Windows expire on schedule like the Redis
// backend but are local to one process; use it for tests, demos, and
// single-process agents.
package inmem

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/becomeliminal/memtier/memory"
)

// Store implements memory.SessionStore over an expiring in-process cache.
type Store struct {
	cache *gocache.Cache
}

// New creates an in-process session store.
func New() *Store {
	return &Store{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// Turns returns a copy of the stored window, oldest first. A missing or
// expired session yields an empty slice.
func (s *Store) Turns(_ context.Context, session string) ([]memory.Turn, error) {
	v, ok := s.cache.Get(session)
	if !ok {
		return nil, nil
	}
	stored := v.([]memory.Turn)
	out := make([]memory.Turn, len(stored))
	copy(out, stored)
	return out, nil
}

// ReplaceTurns stores a copy of the window with the given TTL.
func (s *Store) ReplaceTurns(_ context.Context, session string, turns []memory.Turn, ttl time.Duration) error {
	cp := make([]memory.Turn, len(turns))
	copy(cp, turns)
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.cache.Set(session, cp, ttl)
	return nil
}

// Clear removes the session window immediately.
func (s *Store) Clear(_ context.Context, session string) error {
	s.cache.Delete(session)
	return nil
}

// Ping always succeeds; the cache lives in-process.
func (s *Store) Ping(context.Context) error {
	return nil
}
