package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Strategy compresses a list of texts into a bounded-length summary.
// A strategy may fail (backend unavailable, input unsuitable); the
// Summarizer then falls through to the next strategy in its chain.
//
// Implementations: Extractive (always available), LocalModel (wraps a local
// TextGenerator), summarizer/claude.Strategy (Anthropic API).
type Strategy interface {
	Name() string
	Summarize(ctx context.Context, texts []string, maxLength int) (string, error)
}

// TextGenerator produces text from a prompt. LocalModel uses it to drive a
// locally hosted summarization model without binding to a specific runtime.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Extractive is the default summarization strategy: it returns the single
// longest input text, truncated to maxLength with an ellipsis marker. It
// needs no external dependency and never fails.
type Extractive struct{}

func (Extractive) Name() string { return "extractive" }

func (Extractive) Summarize(_ context.Context, texts []string, maxLength int) (string, error) {
	if len(texts) == 0 {
		return "", nil
	}

	longest := texts[0]
	for _, t := range texts[1:] {
		if len(t) > len(longest) {
			longest = t
		}
	}

	if len(longest) <= maxLength {
		return longest, nil
	}
	return strings.TrimRight(truncateBytes(longest, maxLength), " ") + "...", nil
}

// LocalModel summarizes via a locally available generation model. Inputs
// shorter than MinInputLength are too short to summarize meaningfully and
// fall through to the next strategy, as does any generator failure.
type LocalModel struct {
	Generator TextGenerator

	// MinInputLength is the minimum combined input size the model accepts.
	// Default: 50.
	MinInputLength int
}

func (m *LocalModel) Name() string { return "local-model" }

func (m *LocalModel) Summarize(ctx context.Context, texts []string, maxLength int) (string, error) {
	if m.Generator == nil {
		return "", fmt.Errorf("no local model configured")
	}

	minLen := m.MinInputLength
	if minLen <= 0 {
		minLen = 50
	}
	combined := strings.Join(texts, "\n")
	if len(combined) < minLen {
		return "", fmt.Errorf("input too short for local model (%d < %d)", len(combined), minLen)
	}

	prompt := fmt.Sprintf("Summarize the following content in no more than %d characters:\n\n%s", maxLength, combined)
	summary, err := m.Generator.Generate(ctx, prompt, maxLength/2)
	if err != nil {
		return "", fmt.Errorf("local model: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// Summarizer compresses groups of memory records into bounded summaries and
// keeps an append-only history of results for audit.
//
// The fallback behavior is an explicit ordered chain of strategies tried in
// sequence, with Extractive always terminal, so degradation is inspectable
// rather than hidden in recovery paths. Callers never see a strategy
// failure: some chain member always produces a summary.
type Summarizer struct {
	mu      sync.Mutex
	chain   []Strategy
	history []SummaryResult
}

// NewSummarizer builds a summarizer trying the given strategies in order.
// An Extractive terminal member is appended if the chain does not already
// end with one.
func NewSummarizer(strategies ...Strategy) *Summarizer {
	chain := make([]Strategy, 0, len(strategies)+1)
	chain = append(chain, strategies...)
	if n := len(chain); n == 0 || chain[n-1].Name() != (Extractive{}).Name() {
		chain = append(chain, Extractive{})
	}
	return &Summarizer{chain: chain}
}

// ChangeStrategy swaps the head of the chain at runtime, keeping the
// extractive fallback in place. Passing nil resets to extractive-only.
func (s *Summarizer) ChangeStrategy(strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strategy == nil {
		s.chain = []Strategy{Extractive{}}
	} else {
		s.chain = []Strategy{strategy, Extractive{}}
	}
	log.Printf("[SUMMARIZER] Changed strategy to %s", s.chain[0].Name())
}

// Chain returns the current strategy chain, head first.
func (s *Summarizer) Chain() []Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Strategy, len(s.chain))
	copy(out, s.chain)
	return out
}

// SummarizeMemories compresses the records' texts into one summary, tagging
// it with the topic and recording it in the history. Records with empty text
// are skipped. Empty input yields a zero summary that is not recorded.
func (s *Summarizer) SummarizeMemories(ctx context.Context, records []*MemoryRecord, maxLength int, topic string) SummaryResult {
	texts := make([]string, 0, len(records))
	sourceIDs := make([]int, 0, len(records))
	originalLength := 0
	for _, rec := range records {
		if rec == nil || rec.Text == "" {
			continue
		}
		texts = append(texts, rec.Text)
		sourceIDs = append(sourceIDs, rec.ID)
		originalLength += len(rec.Text)
	}

	result := SummaryResult{
		ID:             uuid.New().String(),
		SourceCount:    len(texts),
		SourceIDs:      sourceIDs,
		CreatedAt:      time.Now(),
		Topic:          topic,
		OriginalLength: originalLength,
	}
	if len(texts) == 0 {
		return result
	}

	s.mu.Lock()
	chain := make([]Strategy, len(s.chain))
	copy(chain, s.chain)
	s.mu.Unlock()

	for _, strategy := range chain {
		summary, err := strategy.Summarize(ctx, texts, maxLength)
		if err != nil {
			log.Printf("[SUMMARIZER] Strategy %s failed: %v", strategy.Name(), err)
			continue
		}
		result.Summary = summary
		result.Strategy = strategy.Name()
		break
	}

	s.mu.Lock()
	s.history = append(s.history, result)
	s.mu.Unlock()

	if result.OriginalLength > 0 {
		ratio := float64(len(result.Summary)) / float64(result.OriginalLength)
		log.Printf("[SUMMARIZER] Summarized %d memories into %d chars (compression ratio: %.2f%%)",
			len(texts), len(result.Summary), ratio*100)
	}
	return result
}

// GetSummaryHistory returns up to limit of the most recent summaries,
// most-recent-last.
func (s *Summarizer) GetSummaryHistory(limit int) []SummaryResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]SummaryResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}
