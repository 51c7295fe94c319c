package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/outreach-ai-platform/internal/generation"
)

const summaryPrompt = `Here is some text extracted from the homepage of %s:

%s

Provide a brief and professional summary (2-3 sentences) of what this company does.`

// LLMSummarizer condenses scraped homepage text into a company background.
type LLMSummarizer struct {
	llm generation.LLMClient
}

func NewLLMSummarizer(llm generation.LLMClient) *LLMSummarizer {
	if llm == nil {
		panic("enrich: llm client required")
	}
	return &LLMSummarizer{llm: llm}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, domain, text string) (string, error) {
	resp, err := s.llm.Complete(ctx, generation.LLMRequest{
		Messages:    []generation.ChatMessage{{Role: generation.ChatRoleUser, Content: fmt.Sprintf(summaryPrompt, domain, text)}},
		MaxTokens:   150,
		Temperature: 0.5,
	})
	if err != nil {
		return "", fmt.Errorf("enrich: summarize %s: %w", domain, err)
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", errors.New("enrich: empty summary")
	}
	return summary, nil
}
