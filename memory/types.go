package memory

import (
	"context"
	"time"
)

// Turn is one role-tagged message within a session's working memory.
// Turns are immutable once written; ordering is append order.
type Turn struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MemoryRecord is a durable long-term memory entry (fact, preference, or
// high-priority interaction). Records are never physically removed; deletion
// stamps DeletedAt and leaves the record and its vector in place.
type MemoryRecord struct {
	ID        int            `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// Type returns the record's metadata type tag ("fact", "interaction", ...),
// or "unknown" if none is set.
func (r *MemoryRecord) Type() string {
	if r.Metadata != nil {
		if t, ok := r.Metadata["type"].(string); ok && t != "" {
			return t
		}
	}
	return "unknown"
}

// SearchResult is one similarity-search hit: the matched record together
// with its raw distance and the derived similarity score in (0, 1].
type SearchResult struct {
	ID         int
	Similarity float64
	Distance   float64
	Record     *MemoryRecord
}

// SummaryResult is the immutable outcome of one compaction run.
type SummaryResult struct {
	ID             string
	Summary        string
	SourceCount    int
	SourceIDs      []int
	CreatedAt      time.Time
	Topic          string
	OriginalLength int
	Strategy       string
}

// Priority decides write routing in Manager.AddInteraction: Low and Medium
// interactions stay in working memory only; High and Critical are also
// persisted to long-term memory.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Embedder converts text to vector embeddings.
// Implementations: embedder/mock (deterministic, for tests and demos),
// embedder/onnx (all-MiniLM-L6-v2, offline semantic search).
//
// Embeddings must be deterministic for identical input over the lifetime of
// one index instance; the package does not enforce this. No internal timeout
// is applied to Embed calls - callers guard slow embedders externally.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Hit is one nearest-neighbor result from an Index search.
type Hit struct {
	Position int
	Distance float64
}

// Index is a vector index supporting insertion and k-nearest-neighbor
// retrieval. The distance metric is implementation-defined but must be
// consistent across the lifetime of one instance.
//
// Implementations: index/flat (squared L2, persistent), index/chromem
// (cosine distance via chromem-go, in-memory).
type Index interface {
	// Insert adds a vector and returns its stable ordinal position.
	Insert(ctx context.Context, vec []float32) (int, error)

	// Search returns up to k nearest neighbors, nearest first.
	Search(ctx context.Context, vec []float32, k int) ([]Hit, error)

	// Size returns the number of stored vectors.
	Size() int
}

// PersistentIndex is an Index that can snapshot itself to disk. Only
// persistent indexes participate in LongTermMemory.SaveIndex/LoadIndex.
type PersistentIndex interface {
	Index

	SaveFile(path string) error
	LoadFile(path string) error
}

// VectorUpdater is an optional Index capability: replacing the vector at an
// existing position. LongTermMemory uses it to re-embed updated records when
// Config.ReembedOnUpdate is enabled; indexes without it keep the stale
// vector.
type VectorUpdater interface {
	UpdateVector(pos int, vec []float32) error
}

// SessionStore is the working-memory turn store. Implementations:
// session/redis (shared, the turn list lives in a Redis list) and
// session/inmem (per-process TTL cache).
type SessionStore interface {
	// Turns returns the stored window for a session, oldest first.
	// A missing or expired session yields an empty slice, not an error.
	Turns(ctx context.Context, session string) ([]Turn, error)

	// ReplaceTurns atomically replaces the session's window and resets its
	// TTL. A ttl of zero means no expiry.
	ReplaceTurns(ctx context.Context, session string, turns []Turn, ttl time.Duration) error

	// Clear removes the session's window immediately.
	Clear(ctx context.Context, session string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// SessionStats summarizes one session's working-memory window.
type SessionStats struct {
	SessionID  string
	TurnCount  int
	UserTurns  int
	AgentTurns int
}

// MemoryStats summarizes the long-term store.
type MemoryStats struct {
	TotalMemories  int
	IndexSize      int
	VectorDim      int
	MemoriesByType map[string]int
}

// ManagerStats is the combined view exposed by Manager.GetStats.
type ManagerStats struct {
	LongTerm           MemoryStats
	WorkingMemoryReady bool
}
