// Package memory provides a dual-tier memory substrate for conversational
// agents: a bounded, session-scoped working memory for recent dialogue turns
// and a durable long-term memory indexed for semantic similarity search.
//
// Architecture:
//   - WorkingMemory: per-session sliding window with TTL expiry, backed by a
//     pluggable SessionStore (Redis for shared deployments, in-process cache
//     for local use)
//   - LongTermMemory: append-mostly record table paired with a vector Index,
//     with snapshot persistence to disk
//   - Manager: unified read/write API; routes writes by priority and
//     assembles retrieval-augmented context for prompt injection
//   - Summarizer: pluggable compaction strategies with an extractive fallback
//     that is always available
//
// Backends:
//   - index/flat: brute-force squared-L2 index (the default)
//   - index/chromem: chromem-go backed index (embedded vector database)
//   - session/redis, session/inmem: working-memory turn stores
//   - embedder/mock (deterministic, offline), embedder/onnx (all-MiniLM-L6-v2)
//   - summarizer/claude: generative summarization via the Anthropic API
package memory
