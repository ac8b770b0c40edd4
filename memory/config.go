package memory

import "time"

// Config holds settings shared by the memory components. Zero values fall
// back to DefaultConfig field by field via normalize.
type Config struct {
	// WindowSize is the maximum number of turns kept per session.
	// Default: 10
	WindowSize int

	// SessionTTL is how long an idle session's window survives. The TTL is
	// reset on every write to the session.
	// Default: 24h
	SessionTTL time.Duration

	// RetrievalTopK is how many long-term memories Manager.GetAgentContext
	// retrieves for a query.
	// Default: 3
	RetrievalTopK int

	// ContextMaxTokens bounds assembled context. The character budget is
	// approximated as ContextMaxTokens*4.
	// Default: 2000
	ContextMaxTokens int

	// IndexPath and MapPath are where SaveMemories/LoadMemories put the
	// index snapshot and the id->record table.
	IndexPath string
	MapPath   string

	// FilterDeleted drops logically deleted records from SearchSimilar
	// results. Off by default: deleted records keep surfacing as matches,
	// matching the historical behavior, and callers check DeletedAt.
	FilterDeleted bool

	// ReembedOnUpdate recomputes the vector when UpdateMemory changes a
	// record's text. Requires an index implementing VectorUpdater; off by
	// default, leaving the stale vector in place.
	ReembedOnUpdate bool
}

// DefaultConfig holds sensible defaults for local use.
var DefaultConfig = &Config{
	WindowSize:       10,
	SessionTTL:       24 * time.Hour,
	RetrievalTopK:    3,
	ContextMaxTokens: 2000,
	IndexPath:        "data/memory_index.bin",
	MapPath:          "data/memory_map.json",
}

// normalize fills unset fields from DefaultConfig.
func (c *Config) normalize() *Config {
	if c == nil {
		cp := *DefaultConfig
		return &cp
	}
	out := *c
	if out.WindowSize <= 0 {
		out.WindowSize = DefaultConfig.WindowSize
	}
	if out.SessionTTL <= 0 {
		out.SessionTTL = DefaultConfig.SessionTTL
	}
	if out.RetrievalTopK <= 0 {
		out.RetrievalTopK = DefaultConfig.RetrievalTopK
	}
	if out.ContextMaxTokens <= 0 {
		out.ContextMaxTokens = DefaultConfig.ContextMaxTokens
	}
	if out.IndexPath == "" {
		out.IndexPath = DefaultConfig.IndexPath
	}
	if out.MapPath == "" {
		out.MapPath = DefaultConfig.MapPath
	}
	return &out
}
