// Package flat provides a brute-force vector index using squared Euclidean
// distance. Every search scans all stored vectors, which keeps results exact
// and the structure trivially serializable; it is the default index backend.
package flat

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/becomeliminal/memtier/memory"
)

// Index is an append-only flat vector index. Positions are assigned
// sequentially from 0 and are stable for the lifetime of the index.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
}

// New creates a flat index for vectors of the given dimension.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Insert appends a vector and returns its position.
func (ix *Index) Insert(_ context.Context, vec []float32) (int, error) {
	if len(vec) != ix.dim {
		return 0, fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	cp := make([]float32, len(vec))
	copy(cp, vec)
	ix.vectors = append(ix.vectors, cp)
	return len(ix.vectors) - 1, nil
}

// Search returns up to k nearest vectors by squared L2 distance, nearest
// first. Ties are broken by position, lowest first. A k larger than the
// index size is clamped.
func (ix *Index) Search(_ context.Context, vec []float32, k int) ([]memory.Hit, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vec), ix.dim)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k > len(ix.vectors) {
		k = len(ix.vectors)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]memory.Hit, 0, len(ix.vectors))
	for pos, stored := range ix.vectors {
		var dist float64
		for i, v := range stored {
			d := float64(vec[i]) - float64(v)
			dist += d * d
		}
		hits = append(hits, memory.Hit{Position: pos, Distance: dist})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits[:k], nil
}

// Size returns the number of stored vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// UpdateVector replaces the vector at an existing position in place.
func (ix *Index) UpdateVector(pos int, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if pos < 0 || pos >= len(ix.vectors) {
		return fmt.Errorf("position %d out of range [0, %d)", pos, len(ix.vectors))
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	ix.vectors[pos] = cp
	return nil
}

// snapshot is the on-disk form of the index.
type snapshot struct {
	Dim     int
	Vectors [][]float32
}

// SaveFile writes a binary snapshot of the index.
func (ix *Index) SaveFile(path string) error {
	ix.mu.RLock()
	snap := snapshot{Dim: ix.dim, Vectors: ix.vectors}
	ix.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return nil
}

// LoadFile replaces the index contents with a previously saved snapshot.
func (ix *Index) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	for pos, v := range snap.Vectors {
		if len(v) != snap.Dim {
			return fmt.Errorf("snapshot vector %d has dimension %d, want %d", pos, len(v), snap.Dim)
		}
	}

	ix.mu.Lock()
	ix.dim = snap.Dim
	ix.vectors = snap.Vectors
	ix.mu.Unlock()
	return nil
}
