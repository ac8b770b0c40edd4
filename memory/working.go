package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// WorkingMemory maintains, per session key, the most recent N turns, each
// subject to a TTL measured from the last write to that session.
//
// Every append is a read-modify-write-replace: the whole per-session window
// is re-materialized in the store. A per-session mutex serializes writers on
// the same key so concurrent appends never drop a turn; writers on distinct
// keys do not block each other.
type WorkingMemory struct {
	store      SessionStore
	windowSize int
	ttl        time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWorkingMemory creates a working memory over the given session store.
func NewWorkingMemory(store SessionStore, config *Config) *WorkingMemory {
	cfg := config.normalize()
	return &WorkingMemory{
		store:      store,
		windowSize: cfg.WindowSize,
		ttl:        cfg.SessionTTL,
		locks:      make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing writers of one session key.
func (w *WorkingMemory) sessionLock(session string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[session]
	if !ok {
		l = &sync.Mutex{}
		w.locks[session] = l
	}
	return l
}

// AddContext appends a turn to the session's window, trims the window to the
// configured size, and resets the session TTL. The role is stored verbatim;
// unknown roles are not an error.
func (w *WorkingMemory) AddContext(ctx context.Context, session, role, content string, metadata map[string]any) error {
	turn := Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	lock := w.sessionLock(session)
	lock.Lock()
	defer lock.Unlock()

	turns, err := w.store.Turns(ctx, session)
	if err != nil {
		log.Printf("[WORKING] Error reading session %s: %v", session, err)
		return fmt.Errorf("read session %s: %w", session, err)
	}

	turns = append(turns, turn)
	if len(turns) > w.windowSize {
		turns = turns[len(turns)-w.windowSize:]
	}

	if err := w.store.ReplaceTurns(ctx, session, turns, w.ttl); err != nil {
		log.Printf("[WORKING] Error writing session %s: %v", session, err)
		return fmt.Errorf("write session %s: %w", session, err)
	}

	return nil
}

// GetContext returns the session's full current window, oldest first. A
// missing or expired session yields an empty slice, not an error.
func (w *WorkingMemory) GetContext(ctx context.Context, session string) ([]Turn, error) {
	turns, err := w.store.Turns(ctx, session)
	if err != nil {
		log.Printf("[WORKING] Error reading session %s: %v", session, err)
		return nil, fmt.Errorf("read session %s: %w", session, err)
	}
	return turns, nil
}

// GetContextText renders the window as "ROLE: content" lines joined by
// newlines, suitable for prompt injection. Empty string if there are no
// turns.
func (w *WorkingMemory) GetContextText(ctx context.Context, session string) (string, error) {
	turns, err := w.GetContext(ctx, session)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(role), t.Content))
	}
	return strings.Join(lines, "\n"), nil
}

// ClearMemory deletes the session's entire window immediately.
func (w *WorkingMemory) ClearMemory(ctx context.Context, session string) error {
	lock := w.sessionLock(session)
	lock.Lock()
	defer lock.Unlock()

	if err := w.store.Clear(ctx, session); err != nil {
		log.Printf("[WORKING] Error clearing session %s: %v", session, err)
		return fmt.Errorf("clear session %s: %w", session, err)
	}
	log.Printf("[WORKING] Cleared session %s", session)
	return nil
}

// GetSessionStats returns turn counts for a session.
func (w *WorkingMemory) GetSessionStats(ctx context.Context, session string) (SessionStats, error) {
	turns, err := w.GetContext(ctx, session)
	if err != nil {
		return SessionStats{}, err
	}

	stats := SessionStats{SessionID: session, TurnCount: len(turns)}
	for _, t := range turns {
		switch t.Role {
		case "user":
			stats.UserTurns++
		case "agent":
			stats.AgentTurns++
		}
	}
	return stats, nil
}

// Ready reports whether the underlying session store is reachable.
func (w *WorkingMemory) Ready(ctx context.Context) bool {
	return w.store.Ping(ctx) == nil
}
