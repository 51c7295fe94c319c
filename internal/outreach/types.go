// Package outreach decides which outbound action each lead is due for and runs
// the per-cycle loop that generates, sends and records those actions.
package outreach

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
)

// Action is the routing decision for a lead.
type Action string

const (
	ActionColdOpen Action = "COLD_OPEN"
	ActionReply    Action = "REPLY"
	ActionRetry    Action = "RETRY"
	ActionSkip     Action = "SKIP"
)

// Content is the generator output for one outbound email.
type Content struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Stage is the conversation stage the generator inferred for replies.
	Stage string `json:"stage,omitempty"`
}

// PortfolioItem is a showcase project offered in cold opens.
type PortfolioItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Briefing is the cold-open context supplied for a lead.
type Briefing struct {
	CompanyBackground string
	Portfolio         []PortfolioItem
}

// BriefingSource supplies company background and portfolio for cold opens.
type BriefingSource interface {
	Brief(ctx context.Context, lead leads.Lead) (Briefing, error)
}

// ContentGenerator produces email content in one of two modes. Implementations
// return *GenerationError (or any error, which callers treat as one).
type ContentGenerator interface {
	GenerateColdOpen(ctx context.Context, identity leads.Identity, companyBackground string, portfolio []PortfolioItem) (Content, error)
	GenerateReply(ctx context.Context, identity leads.Identity, history []leads.HistoryEntry) (Content, error)
}

// Receipt identifies a delivered email.
type Receipt struct {
	MessageID string `json:"message_id,omitempty"`
	From      string `json:"from,omitempty"`
}

// Sender delivers generated content to a lead.
type Sender interface {
	Send(ctx context.Context, identity leads.Identity, content Content) (Receipt, error)
}

// ReplyDetection selects how the router decides a lead has a new inbound message.
type ReplyDetection string

const (
	// ReplyDetectionStatus trusts the REPLIED status set by the reply monitor.
	ReplyDetectionStatus ReplyDetection = "status"
	// ReplyDetectionHistory also treats a trailing inbound message as a pending reply.
	ReplyDetectionHistory ReplyDetection = "history"
)

// Policy holds the routing knobs that come from configuration.
type Policy struct {
	// MaxAttempts bounds failed attempts per outbound message.
	MaxAttempts    int
	ReplyDetection ReplyDetection
}

// ParseReplyDetection normalizes a configured predicate name.
func ParseReplyDetection(raw string) (ReplyDetection, error) {
	switch ReplyDetection(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ReplyDetectionStatus:
		return ReplyDetectionStatus, nil
	case ReplyDetectionHistory:
		return ReplyDetectionHistory, nil
	}
	return "", fmt.Errorf("outreach: unknown reply detection %q", raw)
}

func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("outreach: max attempts must be positive, got %d", p.MaxAttempts)
	}
	if _, err := ParseReplyDetection(string(p.ReplyDetection)); err != nil {
		return err
	}
	return nil
}
