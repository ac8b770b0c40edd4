package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"
)

// LongTermMemory is the durable, growable store of semantically searchable
// records. It pairs an id->record table with a vector Index: a record's id
// equals its vector's ordinal position in the index, by construction, since
// both only ever append.
//
// Deletion is logical (DeletedAt stamp) and does not retract the vector;
// updates do not re-embed by default. Both behaviors are switchable via
// Config (FilterDeleted, ReembedOnUpdate).
type LongTermMemory struct {
	embedder Embedder
	index    Index
	cfg      *Config

	mu      sync.RWMutex
	records map[int]*MemoryRecord
	nextID  int
}

// NewLongTermMemory creates a long-term memory over the given embedder and
// index.
func NewLongTermMemory(embedder Embedder, index Index, config *Config) *LongTermMemory {
	return &LongTermMemory{
		embedder: embedder,
		index:    index,
		cfg:      config.normalize(),
		records:  make(map[int]*MemoryRecord),
	}
}

// AddMemory embeds the text, inserts the vector into the index, and stores
// the record under the next sequential id. The id counter only advances once
// both the vector and the record are in place; a failed embed or index
// insert assigns no id.
func (l *LongTermMemory) AddMemory(ctx context.Context, text string, metadata map[string]any) (int, error) {
	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[LONGTERM] Error embedding memory: %v", err)
		return 0, fmt.Errorf("embed memory: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.index.Insert(ctx, vec)
	if err != nil {
		log.Printf("[LONGTERM] Error inserting vector: %v", err)
		return 0, fmt.Errorf("insert vector: %w", err)
	}
	if pos != l.nextID {
		// The pairing invariant is broken only if the index was mutated
		// outside this store.
		return 0, fmt.Errorf("index position %d does not match next id %d", pos, l.nextID)
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}
	id := l.nextID
	l.records[id] = &MemoryRecord{
		ID:        id,
		Text:      text,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	l.nextID++

	log.Printf("[LONGTERM] Added memory #%d: %s", id, truncateLog(text, 50))
	return id, nil
}

// SearchSimilar embeds the query and returns up to topK nearest records,
// nearest first, with similarity = 1/(1+distance). An empty index yields an
// empty result, not an error. Logically deleted records are included unless
// Config.FilterDeleted is set.
func (l *LongTermMemory) SearchSimilar(ctx context.Context, queryText string, topK int) ([]SearchResult, error) {
	l.mu.RLock()
	size := l.index.Size()
	l.mu.RUnlock()
	if size == 0 {
		log.Printf("[LONGTERM] Memory index is empty")
		return nil, nil
	}

	vec, err := l.embedder.Embed(ctx, queryText)
	if err != nil {
		log.Printf("[LONGTERM] Error embedding query: %v", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	k := topK
	if s := l.index.Size(); k > s {
		k = s
	}
	if k <= 0 {
		return nil, nil
	}

	hits, err := l.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		rec, ok := l.records[h.Position]
		if !ok {
			continue
		}
		if l.cfg.FilterDeleted && rec.DeletedAt != nil {
			continue
		}
		results = append(results, SearchResult{
			ID:         h.Position,
			Similarity: 1.0 / (1.0 + h.Distance),
			Distance:   h.Distance,
			Record:     rec,
		})
	}
	return results, nil
}

// GetMemory returns the record with the given id.
func (l *LongTermMemory) GetMemory(id int) (*MemoryRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	return rec, ok
}

// UpdateMemory replaces the record's text (when non-empty) and merges the
// given metadata, stamping UpdatedAt. The index vector is left untouched
// unless Config.ReembedOnUpdate is set and the index supports in-place
// vector updates. Returns false for an unknown id.
func (l *LongTermMemory) UpdateMemory(ctx context.Context, id int, text string, metadata map[string]any) (bool, error) {
	var newVec []float32
	if text != "" && l.cfg.ReembedOnUpdate {
		if _, ok := l.index.(VectorUpdater); ok {
			vec, err := l.embedder.Embed(ctx, text)
			if err != nil {
				return false, fmt.Errorf("re-embed memory #%d: %w", id, err)
			}
			newVec = vec
		} else {
			log.Printf("[LONGTERM] Index does not support vector updates, keeping stale vector for #%d", id)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return false, nil
	}

	if text != "" {
		rec.Text = text
		if newVec != nil {
			if err := l.index.(VectorUpdater).UpdateVector(id, newVec); err != nil {
				return false, fmt.Errorf("update vector #%d: %w", id, err)
			}
		}
	}
	for k, v := range metadata {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any)
		}
		rec.Metadata[k] = v
	}
	now := time.Now()
	rec.UpdatedAt = &now
	return true, nil
}

// DeleteMemory logically deletes a record: it stamps DeletedAt and keeps the
// record and its vector in place, so the id stays searchable. Returns false
// for an unknown id.
func (l *LongTermMemory) DeleteMemory(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return false
	}
	now := time.Now()
	rec.DeletedAt = &now
	log.Printf("[LONGTERM] Deleted memory #%d", id)
	return true
}

// SaveIndex persists the index snapshot and the id->record table as a
// matched pair. The index must implement PersistentIndex. Persistence is
// exclusive with mutation: the write lock is held for the whole snapshot.
func (l *LongTermMemory) SaveIndex(indexPath, mapPath string) error {
	pi, ok := l.index.(PersistentIndex)
	if !ok {
		return fmt.Errorf("index %T does not support persistence", l.index)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range []string{indexPath, mapPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	if err := pi.SaveFile(indexPath); err != nil {
		log.Printf("[LONGTERM] Error saving index: %v", err)
		return fmt.Errorf("save index: %w", err)
	}

	table := make(map[string]*MemoryRecord, len(l.records))
	for id, rec := range l.records {
		table[strconv.Itoa(id)] = rec
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record table: %w", err)
	}
	if err := os.WriteFile(mapPath, data, 0o644); err != nil {
		log.Printf("[LONGTERM] Error saving record table: %v", err)
		return fmt.Errorf("save record table: %w", err)
	}

	log.Printf("[LONGTERM] Saved %d memories to %s and %s", len(l.records), indexPath, mapPath)
	return nil
}

// LoadIndex restores a previously saved snapshot pair. A missing artifact is
// a non-fatal "no prior state" signal: (false, nil). Any other I/O or format
// fault is an error. After a successful load the next-id counter is
// recomputed as max(id)+1; the stored files carry no counter.
func (l *LongTermMemory) LoadIndex(indexPath, mapPath string) (bool, error) {
	pi, ok := l.index.(PersistentIndex)
	if !ok {
		return false, fmt.Errorf("index %T does not support persistence", l.index)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range []string{indexPath, mapPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			log.Printf("[LONGTERM] Memory snapshot not found at %s", p)
			return false, nil
		} else if err != nil {
			return false, fmt.Errorf("stat %s: %w", p, err)
		}
	}

	if err := pi.LoadFile(indexPath); err != nil {
		return false, fmt.Errorf("load index: %w", err)
	}

	data, err := os.ReadFile(mapPath)
	if err != nil {
		return false, fmt.Errorf("read record table: %w", err)
	}
	var table map[string]*MemoryRecord
	if err := json.Unmarshal(data, &table); err != nil {
		return false, fmt.Errorf("parse record table: %w", err)
	}

	records := make(map[int]*MemoryRecord, len(table))
	nextID := 0
	for key, rec := range table {
		id, err := strconv.Atoi(key)
		if err != nil {
			return false, fmt.Errorf("invalid record id %q: %w", key, err)
		}
		rec.ID = id
		records[id] = rec
		if id+1 > nextID {
			nextID = id + 1
		}
	}

	// The files are a matched pair: the index must cover exactly the record
	// table's id space, or the id==position invariant is already broken.
	if size := pi.Size(); size != nextID {
		return false, fmt.Errorf("snapshot mismatch: index holds %d vectors but record table spans ids [0, %d)", size, nextID)
	}

	l.records = records
	l.nextID = nextID
	log.Printf("[LONGTERM] Loaded %d memories from %s", len(records), indexPath)
	return true, nil
}

// GetStats returns store counters and a metadata-type histogram computed by
// scanning all records.
func (l *LongTermMemory) GetStats() MemoryStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byType := make(map[string]int)
	for _, rec := range l.records {
		byType[rec.Type()]++
	}
	return MemoryStats{
		TotalMemories:  len(l.records),
		IndexSize:      l.index.Size(),
		VectorDim:      l.embedder.Dimensions(),
		MemoriesByType: byType,
	}
}

// ListMemories returns all records ordered by id, for callers driving
// compaction over aging content.
func (l *LongTermMemory) ListMemories() []*MemoryRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*MemoryRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// truncateBytes cuts s to at most max bytes, backing the cut off to the
// previous rune boundary so a multi-byte character is never split.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return truncateBytes(s, maxLen) + "..."
}
