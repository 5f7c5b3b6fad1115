package escalation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/llm"
)

const summaryPrompt = "Summarize this tutoring conversation in 2-3 sentences, focusing on what the student is trying to learn and where they're struggling:\n\n"

// LLMSummarizer summarizes conversations with a language model. Results are
// cached per conversation and message count, so an unchanged conversation
// is summarized once.
type LLMSummarizer struct {
	provider llm.Provider
	cfg      Config
	cache    *gocache.Cache
}

// NewLLMSummarizer returns a summarizer over p.
func NewLLMSummarizer(p llm.Provider, cfg Config) *LLMSummarizer {
	return &LLMSummarizer{
		provider: p,
		cfg:      cfg,
		cache:    gocache.New(cfg.SummaryCacheTTL, 2*cfg.SummaryCacheTTL),
	}
}

// Summarize returns a short summary of the latest messages. The call is
// bounded by the configured timeout.
func (s *LLMSummarizer) Summarize(ctx context.Context, conv learning.Conversation) (string, error) {
	key := conv.ID + ":" + strconv.Itoa(len(conv.Messages))
	if v, ok := s.cache.Get(key); ok {
		return v.(string), nil
	}

	ctx = llm.WithPurpose(ctx, llm.PurposeHandoffSummary)
	if s.cfg.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SummaryTimeout)
		defer cancel()
	}

	resp, err := s.provider.Generate(ctx, llm.Request{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: summaryPrompt + Transcript(conv, s.cfg.SummaryMessages, s.cfg.SummaryTruncate),
		}},
		MaxTokens:   s.cfg.SummaryMaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation %s: %w", conv.ID, err)
	}

	summary := resp.Text()
	s.cache.SetDefault(key, summary)
	return summary, nil
}

// Transcript renders the last n messages as "role: content" lines, each
// content truncated to limit characters.
func Transcript(conv learning.Conversation, n, limit int) string {
	msgs := conv.Last(n)
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = string(m.Role) + ": " + truncate(m.Content, limit)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to at most limit runes, ending in "..." when cut.
func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
