package memory_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/becomeliminal/memtier/memory"
	"github.com/becomeliminal/memtier/memory/index/flat"
)

// stubEmbedder returns preset vectors for known texts and a length-derived
// vector otherwise, so tests control distances exactly.
type stubEmbedder struct {
	dims    int
	vecs    map[string][]float32
	failFor map[string]bool
}

func newStubEmbedder(dims int) *stubEmbedder {
	return &stubEmbedder{
		dims:    dims,
		vecs:    make(map[string][]float32),
		failFor: make(map[string]bool),
	}
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.failFor[text] {
		return nil, fmt.Errorf("embedder unavailable")
	}
	if v, ok := s.vecs[text]; ok {
		out := make([]float32, s.dims)
		copy(out, v)
		return out, nil
	}
	out := make([]float32, s.dims)
	out[0] = float32(len(text))
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }

func newLongTerm(cfg *memory.Config) (*memory.LongTermMemory, *stubEmbedder) {
	emb := newStubEmbedder(3)
	return memory.NewLongTermMemory(emb, flat.New(3), cfg), emb
}

func TestLongTermMemory_SequentialIDs(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)

	for want := 0; want < 3; want++ {
		id, err := ltm.AddMemory(ctx, fmt.Sprintf("memory %d", want), nil)
		if err != nil {
			t.Fatalf("AddMemory failed: %v", err)
		}
		if id != want {
			t.Errorf("Expected id %d, got %d", want, id)
		}
	}

	stats := ltm.GetStats()
	if stats.TotalMemories != 3 || stats.IndexSize != 3 {
		t.Errorf("Expected 3 records and 3 vectors, got %+v", stats)
	}
}

func TestLongTermMemory_EmbedFailureAssignsNoID(t *testing.T) {
	ctx := context.Background()
	ltm, emb := newLongTerm(nil)
	emb.failFor["bad"] = true

	if _, err := ltm.AddMemory(ctx, "bad", nil); err == nil {
		t.Fatal("Expected error from failing embedder")
	}

	id, err := ltm.AddMemory(ctx, "good", nil)
	if err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}
	if id != 0 {
		t.Errorf("Expected id counter not advanced by failed add, got id %d", id)
	}

	stats := ltm.GetStats()
	if stats.TotalMemories != stats.IndexSize {
		t.Errorf("Record/vector pairing broken: %+v", stats)
	}
}

func TestLongTermMemory_SearchEmptyIndex(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)

	results, err := ltm.SearchSimilar(ctx, "anything", 5)
	if err != nil {
		t.Fatalf("SearchSimilar failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty results for empty index, got %d", len(results))
	}
}

func TestLongTermMemory_SimilarityOrdering(t *testing.T) {
	ctx := context.Background()
	ltm, emb := newLongTerm(nil)
	emb.vecs["near"] = []float32{1, 0, 0}
	emb.vecs["far"] = []float32{5, 0, 0}
	emb.vecs["query"] = []float32{0, 0, 0}

	ltm.AddMemory(ctx, "near", nil)
	ltm.AddMemory(ctx, "far", nil)

	results, err := ltm.SearchSimilar(ctx, "query", 10)
	if err != nil {
		t.Fatalf("SearchSimilar failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Record.Text != "near" {
		t.Errorf("Expected nearest first, got %q", results[0].Record.Text)
	}
	for _, r := range results {
		if r.Similarity <= 0 || r.Similarity > 1 {
			t.Errorf("Similarity %v out of (0, 1]", r.Similarity)
		}
		want := 1.0 / (1.0 + r.Distance)
		if r.Similarity != want {
			t.Errorf("Similarity %v does not match 1/(1+%v)", r.Similarity, r.Distance)
		}
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("Similarity not decreasing with distance: %v then %v",
			results[0].Similarity, results[1].Similarity)
	}
}

func TestLongTermMemory_TopKClamped(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)
	ltm.AddMemory(ctx, "only one", nil)

	results, err := ltm.SearchSimilar(ctx, "query", 10)
	if err != nil {
		t.Fatalf("SearchSimilar failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected top_k clamped to index size, got %d results", len(results))
	}
}

func TestLongTermMemory_GetMemory(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)
	id, _ := ltm.AddMemory(ctx, "remember me", map[string]any{"type": "fact"})

	rec, ok := ltm.GetMemory(id)
	if !ok {
		t.Fatal("Expected record to exist")
	}
	if rec.Text != "remember me" || rec.Type() != "fact" {
		t.Errorf("Unexpected record: %+v", rec)
	}

	if _, ok := ltm.GetMemory(999); ok {
		t.Error("Expected missing id to report not found")
	}
}

func TestLongTermMemory_UpdateMemory(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)
	id, _ := ltm.AddMemory(ctx, "original", map[string]any{"type": "fact", "keep": "yes"})

	ok, err := ltm.UpdateMemory(ctx, id, "updated", map[string]any{"extra": "value"})
	if err != nil || !ok {
		t.Fatalf("UpdateMemory failed: ok=%v err=%v", ok, err)
	}

	rec, _ := ltm.GetMemory(id)
	if rec.Text != "updated" {
		t.Errorf("Expected updated text, got %q", rec.Text)
	}
	if rec.Metadata["keep"] != "yes" || rec.Metadata["extra"] != "value" {
		t.Errorf("Expected merged metadata, got %v", rec.Metadata)
	}
	if rec.UpdatedAt == nil {
		t.Error("Expected UpdatedAt to be stamped")
	}

	ok, err = ltm.UpdateMemory(ctx, 999, "nope", nil)
	if err != nil {
		t.Fatalf("UpdateMemory returned error for missing id: %v", err)
	}
	if ok {
		t.Error("Expected update of missing id to report not found")
	}
}

func TestLongTermMemory_UpdateKeepsStaleVectorByDefault(t *testing.T) {
	ctx := context.Background()
	ltm, emb := newLongTerm(nil)
	emb.vecs["old text"] = []float32{1, 0, 0}
	emb.vecs["new text"] = []float32{0, 5, 0}
	emb.vecs["old text query"] = []float32{1, 0, 0}

	id, _ := ltm.AddMemory(ctx, "old text", nil)
	ltm.UpdateMemory(ctx, id, "new text", nil)

	results, _ := ltm.SearchSimilar(ctx, "old text query", 1)
	if len(results) != 1 || results[0].Distance != 0 {
		t.Errorf("Expected stale vector to still match the old text exactly, got %+v", results)
	}
	if results[0].Record.Text != "new text" {
		t.Errorf("Expected record text updated, got %q", results[0].Record.Text)
	}
}

func TestLongTermMemory_ReembedOnUpdate(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder(3)
	emb.vecs["old text"] = []float32{1, 0, 0}
	emb.vecs["new text"] = []float32{0, 5, 0}
	emb.vecs["new text query"] = []float32{0, 5, 0}
	ltm := memory.NewLongTermMemory(emb, flat.New(3), &memory.Config{ReembedOnUpdate: true})

	id, _ := ltm.AddMemory(ctx, "old text", nil)
	if ok, err := ltm.UpdateMemory(ctx, id, "new text", nil); !ok || err != nil {
		t.Fatalf("UpdateMemory failed: ok=%v err=%v", ok, err)
	}

	results, _ := ltm.SearchSimilar(ctx, "new text query", 1)
	if len(results) != 1 || results[0].Distance != 0 {
		t.Errorf("Expected re-embedded vector to match the new text exactly, got %+v", results)
	}
}

func TestLongTermMemory_LogicalDelete(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)
	id, _ := ltm.AddMemory(ctx, "to delete", nil)

	if !ltm.DeleteMemory(id) {
		t.Fatal("DeleteMemory failed")
	}
	if ltm.DeleteMemory(999) {
		t.Error("Expected delete of missing id to report not found")
	}

	rec, ok := ltm.GetMemory(id)
	if !ok || rec.DeletedAt == nil {
		t.Fatal("Expected record kept with DeletedAt stamped")
	}

	// Default behavior: deleted records still surface in search results.
	results, _ := ltm.SearchSimilar(ctx, "to delete", 1)
	if len(results) != 1 {
		t.Errorf("Expected deleted record to remain searchable, got %d results", len(results))
	}
}

func TestLongTermMemory_FilterDeleted(t *testing.T) {
	ctx := context.Background()
	emb := newStubEmbedder(3)
	ltm := memory.NewLongTermMemory(emb, flat.New(3), &memory.Config{FilterDeleted: true})

	id, _ := ltm.AddMemory(ctx, "gone", nil)
	ltm.AddMemory(ctx, "kept", nil)
	ltm.DeleteMemory(id)

	results, _ := ltm.SearchSimilar(ctx, "query", 10)
	if len(results) != 1 || results[0].Record.Text != "kept" {
		t.Errorf("Expected deleted record filtered out, got %+v", results)
	}
}

func TestLongTermMemory_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.bin")
	mapPath := filepath.Join(dir, "map.json")

	emb := newStubEmbedder(3)
	emb.vecs["alpha"] = []float32{1, 0, 0}
	emb.vecs["beta"] = []float32{0, 1, 0}
	emb.vecs["query"] = []float32{1, 0, 0}

	ltm := memory.NewLongTermMemory(emb, flat.New(3), nil)
	ltm.AddMemory(ctx, "alpha", map[string]any{"type": "fact"})
	ltm.AddMemory(ctx, "beta", map[string]any{"type": "interaction"})
	before, _ := ltm.SearchSimilar(ctx, "query", 2)

	if err := ltm.SaveIndex(indexPath, mapPath); err != nil {
		t.Fatalf("SaveIndex failed: %v", err)
	}

	restored := memory.NewLongTermMemory(emb, flat.New(3), nil)
	loaded, err := restored.LoadIndex(indexPath, mapPath)
	if err != nil {
		t.Fatalf("LoadIndex failed: %v", err)
	}
	if !loaded {
		t.Fatal("Expected snapshot to be found")
	}

	stats := restored.GetStats()
	if stats.TotalMemories != 2 || stats.IndexSize != 2 {
		t.Errorf("Expected 2 memories after load, got %+v", stats)
	}

	after, err := restored.SearchSimilar(ctx, "query", 2)
	if err != nil {
		t.Fatalf("SearchSimilar after load failed: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("Expected %d results after load, got %d", len(before), len(after))
	}
	for i := range after {
		if after[i].ID != before[i].ID {
			t.Errorf("Result %d: expected id %d, got %d", i, before[i].ID, after[i].ID)
		}
		if diff := after[i].Similarity - before[i].Similarity; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Result %d: similarity drifted from %v to %v", i, before[i].Similarity, after[i].Similarity)
		}
	}

	// New ids continue after the loaded maximum.
	id, err := restored.AddMemory(ctx, "gamma", nil)
	if err != nil {
		t.Fatalf("AddMemory after load failed: %v", err)
	}
	if id != 2 {
		t.Errorf("Expected next id 2 after load, got %d", id)
	}
}

func TestLongTermMemory_LoadRejectsMismatchedSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	big := memory.NewLongTermMemory(newStubEmbedder(3), flat.New(3), nil)
	big.AddMemory(ctx, "first", nil)
	big.AddMemory(ctx, "second", nil)
	if err := big.SaveIndex(filepath.Join(dir, "big.bin"), filepath.Join(dir, "big.json")); err != nil {
		t.Fatalf("SaveIndex failed: %v", err)
	}

	small := memory.NewLongTermMemory(newStubEmbedder(3), flat.New(3), nil)
	small.AddMemory(ctx, "only", nil)
	if err := small.SaveIndex(filepath.Join(dir, "small.bin"), filepath.Join(dir, "small.json")); err != nil {
		t.Fatalf("SaveIndex failed: %v", err)
	}

	// Index from one snapshot, record table from the other: the id spaces
	// disagree and the pair must be rejected.
	restored := memory.NewLongTermMemory(newStubEmbedder(3), flat.New(3), nil)
	loaded, err := restored.LoadIndex(filepath.Join(dir, "small.bin"), filepath.Join(dir, "big.json"))
	if err == nil {
		t.Fatal("Expected mismatched snapshot pair to be rejected")
	}
	if loaded {
		t.Error("Expected loaded=false for rejected snapshot")
	}
}

func TestLongTermMemory_LoadMissingSnapshot(t *testing.T) {
	dir := t.TempDir()
	ltm, _ := newLongTerm(nil)

	loaded, err := ltm.LoadIndex(filepath.Join(dir, "nope.bin"), filepath.Join(dir, "nope.json"))
	if err != nil {
		t.Fatalf("Expected missing snapshot to be non-fatal, got error: %v", err)
	}
	if loaded {
		t.Error("Expected loaded=false for missing snapshot")
	}
}

func TestLongTermMemory_StatsByType(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)

	ltm.AddMemory(ctx, "f1", map[string]any{"type": "fact"})
	ltm.AddMemory(ctx, "f2", map[string]any{"type": "fact"})
	ltm.AddMemory(ctx, "i1", map[string]any{"type": "interaction"})
	ltm.AddMemory(ctx, "untyped", nil)

	stats := ltm.GetStats()
	if stats.MemoriesByType["fact"] != 2 || stats.MemoriesByType["interaction"] != 1 || stats.MemoriesByType["unknown"] != 1 {
		t.Errorf("Unexpected type histogram: %v", stats.MemoriesByType)
	}
	if stats.VectorDim != 3 {
		t.Errorf("Expected vector dim 3, got %d", stats.VectorDim)
	}
}

func TestLongTermMemory_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)

	const adders = 8
	const perAdder = 25
	ids := make(chan int, adders*perAdder)

	var wg sync.WaitGroup
	for a := 0; a < adders; a++ {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			for i := 0; i < perAdder; i++ {
				id, err := ltm.AddMemory(ctx, fmt.Sprintf("a%d-%d", a, i), nil)
				if err != nil {
					t.Errorf("AddMemory failed: %v", err)
					return
				}
				ids <- id
			}
		}(a)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("Duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != adders*perAdder {
		t.Errorf("Expected %d distinct ids, got %d", adders*perAdder, len(seen))
	}

	stats := ltm.GetStats()
	if stats.TotalMemories != stats.IndexSize {
		t.Errorf("Record/vector pairing broken under concurrency: %+v", stats)
	}
}

func TestLongTermMemory_ListMemoriesOrdered(t *testing.T) {
	ctx := context.Background()
	ltm, _ := newLongTerm(nil)
	ltm.AddMemory(ctx, "a", nil)
	ltm.AddMemory(ctx, "b", nil)
	ltm.AddMemory(ctx, "c", nil)

	records := ltm.ListMemories()
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.ID != i {
			t.Errorf("Expected record %d at position %d, got %d", i, i, rec.ID)
		}
	}
}
