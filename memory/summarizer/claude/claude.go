// Package claude provides a generative summarization strategy backed by the
// Anthropic API. Any API failure is returned to the summarizer chain, which
// falls through to the extractive fallback; callers never see the failure.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/memtier/memory"
)

const defaultModel = anthropic.ModelClaudeSonnet4_0

// Strategy summarizes text through the Anthropic Messages API.
type Strategy struct {
	client   *anthropic.Client
	model    anthropic.Model
	language string
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithModel overrides the model used for summarization.
func WithModel(model anthropic.Model) Option {
	return func(s *Strategy) {
		s.model = model
	}
}

// WithLanguage sets the summary language (default: Chinese).
func WithLanguage(language string) Option {
	return func(s *Strategy) {
		s.language = language
	}
}

// New creates a Claude-backed summarization strategy.
func New(client *anthropic.Client, opts ...Option) *Strategy {
	s := &Strategy{
		client:   client,
		model:    defaultModel,
		language: "Chinese",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies this strategy in summary results and logs.
func (s *Strategy) Name() string { return "claude" }

// Summarize joins the texts and asks the model for a bounded-length summary
// in the configured language.
func (s *Strategy) Summarize(ctx context.Context, texts []string, maxLength int) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("no anthropic client configured")
	}
	combined := strings.Join(texts, "\n")

	maxTokens := int64(maxLength / 2) // rough character-to-token estimate
	if maxTokens < 64 {
		maxTokens = 64
	}

	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: fmt.Sprintf("Summarize the following content in %s, in no more than %d characters.", s.language, maxLength)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(combined)),
		},
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var summary string
	for _, block := range resp.Content {
		if block.Type == "text" {
			summary += block.Text
		}
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary from model")
	}
	return summary, nil
}

// Ensure the strategy satisfies the summarizer contract.
var _ memory.Strategy = (*Strategy)(nil)
