package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// contextTruncationMarker is appended when assembled context exceeds the
// character budget.
const contextTruncationMarker = "\n[... truncated ...]"

// InteractionResult reports the outcome of both halves of an AddInteraction
// write. The two tiers fail independently; exposing both outcomes lets the
// caller retry only the failed half instead of masking a partial failure
// behind one boolean.
type InteractionResult struct {
	WorkingStored  bool
	LongTermStored bool

	// LongTermID is the assigned record id when LongTermStored is true,
	// -1 otherwise.
	LongTermID int

	WorkingErr  error
	LongTermErr error
}

// Ok reports whether every required write succeeded.
func (r *InteractionResult) Ok() bool {
	return r.WorkingErr == nil && r.LongTermErr == nil
}

// Manager is the single entry point agents use. It owns write routing
// across both memory tiers and read-side context assembly.
type Manager struct {
	working    *WorkingMemory
	longTerm   *LongTermMemory
	summarizer *Summarizer
	cfg        *Config
}

// NewManager composes the two memory tiers. The summarizer is optional;
// pass nil when compaction is not needed.
func NewManager(working *WorkingMemory, longTerm *LongTermMemory, summarizer *Summarizer, config *Config) *Manager {
	return &Manager{
		working:    working,
		longTerm:   longTerm,
		summarizer: summarizer,
		cfg:        config.normalize(),
	}
}

// WorkingMemory returns the short-term tier.
func (m *Manager) WorkingMemory() *WorkingMemory { return m.working }

// LongTermMemory returns the durable tier.
func (m *Manager) LongTermMemory() *LongTermMemory { return m.longTerm }

// Summarizer returns the compaction component, or nil if none was
// configured. The manager never triggers compaction itself.
func (m *Manager) Summarizer() *Summarizer { return m.summarizer }

// AddInteraction appends a conversation turn to working memory and, for
// High or Critical priority, also persists it to long-term memory tagged
// with the session, role, and priority. The two writes fail independently;
// inspect the returned InteractionResult for partial failures.
func (m *Manager) AddInteraction(ctx context.Context, session, role, content string, priority Priority, metadata map[string]any) *InteractionResult {
	result := &InteractionResult{LongTermID: -1}

	if err := m.working.AddContext(ctx, session, role, content, metadata); err != nil {
		result.WorkingErr = err
	} else {
		result.WorkingStored = true
	}

	if priority >= PriorityHigh {
		// Routing tags are defaults; caller metadata wins on key collision.
		meta := map[string]any{
			"session_id": session,
			"role":       role,
			"priority":   priority.String(),
			"type":       "interaction",
		}
		for k, v := range metadata {
			meta[k] = v
		}

		id, err := m.longTerm.AddMemory(ctx, content, meta)
		if err != nil {
			result.LongTermErr = err
		} else {
			result.LongTermStored = true
			result.LongTermID = id
		}
	}

	if !result.Ok() {
		log.Printf("[MANAGER] Partial interaction write for session %s: working=%v long_term=%v",
			session, result.WorkingErr, result.LongTermErr)
	}
	return result
}

// AddFact stores an explicit fact in long-term memory, bypassing working
// memory entirely. Facts are caller-intended durable writes, so failures
// propagate as errors rather than being absorbed.
func (m *Manager) AddFact(ctx context.Context, text, userID string, tags []string, priority Priority) (int, error) {
	metadata := map[string]any{
		"type":     "fact",
		"priority": priority.String(),
	}
	if userID != "" {
		metadata["user_id"] = userID
	}
	if len(tags) > 0 {
		metadata["tags"] = tags
	}

	id, err := m.longTerm.AddMemory(ctx, text, metadata)
	if err != nil {
		return 0, fmt.Errorf("add fact: %w", err)
	}
	log.Printf("[MANAGER] Added fact #%d: %s", id, truncateLog(text, 50))
	return id, nil
}

// GetAgentContext assembles retrieval-augmented context for a session: the
// recent conversation window, plus (when a query is given and long-term is
// included) the most relevant long-term memories. The combined text is
// hard-truncated to the configured character budget with a marker appended.
//
// GetAgentContext never fails: any internal error degrades to a smaller (or
// empty) context.
func (m *Manager) GetAgentContext(ctx context.Context, session, query string, includeLongTerm bool) string {
	var parts []string

	turns, err := m.working.GetContext(ctx, session)
	if err != nil {
		log.Printf("[MANAGER] Skipping conversation block: %v", err)
	} else if len(turns) > 0 {
		lines := make([]string, 0, len(turns)+1)
		lines = append(lines, "=== Recent Conversation ===")
		for _, t := range turns {
			role := t.Role
			if role == "" {
				role = "unknown"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(role), t.Content))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	if includeLongTerm && query != "" {
		results, err := m.longTerm.SearchSimilar(ctx, query, m.cfg.RetrievalTopK)
		if err != nil {
			log.Printf("[MANAGER] Skipping knowledge block: %v", err)
		} else if len(results) > 0 {
			lines := make([]string, 0, len(results)+1)
			lines = append(lines, "=== Relevant Knowledge ===")
			for _, r := range results {
				lines = append(lines, fmt.Sprintf("[%s | relevance: %.2f] %s",
					r.Record.Type(), r.Similarity, r.Record.Text))
			}
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}

	full := strings.Join(parts, "\n\n")
	maxChars := m.cfg.ContextMaxTokens * 4
	if len(full) > maxChars {
		full = truncateBytes(full, maxChars) + contextTruncationMarker
	}
	return full
}

// SaveMemories persists long-term memory to the configured snapshot paths.
func (m *Manager) SaveMemories() error {
	return m.longTerm.SaveIndex(m.cfg.IndexPath, m.cfg.MapPath)
}

// LoadMemories restores long-term memory from the configured snapshot
// paths. A missing snapshot is (false, nil), not an error.
func (m *Manager) LoadMemories() (bool, error) {
	return m.longTerm.LoadIndex(m.cfg.IndexPath, m.cfg.MapPath)
}

// ClearSession clears the session's working memory. Long-term records tied
// to the session are never purged.
func (m *Manager) ClearSession(ctx context.Context, session string) error {
	return m.working.ClearMemory(ctx, session)
}

// GetStats returns combined statistics for both tiers.
func (m *Manager) GetStats(ctx context.Context) ManagerStats {
	return ManagerStats{
		LongTerm:           m.longTerm.GetStats(),
		WorkingMemoryReady: m.working.Ready(ctx),
	}
}
