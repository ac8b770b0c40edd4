// Package chromem adapts chromem-go, a pure Go embedded vector database, to
// the memory.Index contract. Distances are cosine distances (1 - cosine
// similarity), so they are consistent within one index instance but not
// comparable with the flat backend's squared L2 values.
//
// chromem-go keeps everything in memory; this backend does not implement
// memory.PersistentIndex. Use index/flat when snapshots are needed.
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/memtier/memory"
)

// Index stores vectors as chromem documents whose IDs are the string-encoded
// ordinal positions.
type Index struct {
	mu   sync.RWMutex
	col  *chromem.Collection
	size int
}

// New creates a chromem-backed index.
func New() (*Index, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(
		"memtier",
		nil, // no custom embedding func (we provide embeddings)
		nil, // no custom distance func (use default cosine)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{col: col}, nil
}

// Insert adds a vector and returns its position.
func (ix *Index) Insert(ctx context.Context, vec []float32) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	pos := ix.size
	doc := chromem.Document{
		ID:        strconv.Itoa(pos),
		Embedding: vec,
	}
	if err := ix.col.AddDocument(ctx, doc); err != nil {
		return 0, fmt.Errorf("add document: %w", err)
	}
	ix.size++
	return pos, nil
}

// Search returns up to k nearest vectors by cosine distance, nearest first.
func (ix *Index) Search(ctx context.Context, vec []float32, k int) ([]memory.Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k > ix.size {
		k = ix.size
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := ix.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, res := range results {
		pos, err := strconv.Atoi(res.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", res.ID, err)
		}
		dist := 1 - float64(res.Similarity)
		if dist < 0 {
			// Float error on near-identical normalized vectors.
			dist = 0
		}
		hits = append(hits, memory.Hit{Position: pos, Distance: dist})
	}
	return hits, nil
}

// Size returns the number of stored vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}
