package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

var (
	errEmptyOutput     = errors.New("model returned empty text")
	errMalformedOutput = errors.New("model output is not the requested JSON")
	errNoInbound       = errors.New("conversation has no prospect message to reply to")
)

// AgencyProfile describes who the emails are written on behalf of.
type AgencyProfile struct {
	Name         string
	Description  string
	Services     []string
	SenderName   string
	CalendarLink string
}

// Generator implements outreach.ContentGenerator with two model calls per
// email: an internal analysis step followed by the writing step.
type Generator struct {
	llm         LLMClient
	agency      AgencyProfile
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
}

var _ outreach.ContentGenerator = (*Generator)(nil)

func NewGenerator(llm LLMClient, agency AgencyProfile, logger *logging.Logger) *Generator {
	if llm == nil {
		panic("generation: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{
		llm:         llm,
		agency:      agency,
		maxTokens:   1024,
		temperature: 0.7,
		logger:      logger,
	}
}

// WithSampling overrides the writing-step token limit and temperature.
func (g *Generator) WithSampling(maxTokens int, temperature float64) *Generator {
	if maxTokens > 0 {
		g.maxTokens = int32(maxTokens)
	}
	if temperature >= 0 {
		g.temperature = float32(temperature)
	}
	return g
}

func (g *Generator) GenerateColdOpen(ctx context.Context, identity leads.Identity, companyBackground string, portfolio []outreach.PortfolioItem) (outreach.Content, error) {
	content, err := g.coldOpen(ctx, identity, companyBackground, portfolio)
	if err != nil {
		return outreach.Content{}, &outreach.GenerationError{Mode: leads.ModeColdOpen, Err: err}
	}
	return content, nil
}

func (g *Generator) coldOpen(ctx context.Context, identity leads.Identity, companyBackground string, portfolio []outreach.PortfolioItem) (outreach.Content, error) {
	recipient := describeRecipient(identity, companyBackground)

	strategy, err := g.complete(ctx, fmt.Sprintf(coldOpenStrategyPrompt, recipient, describeAgency(g.agency, portfolio)), 0.5)
	if err != nil {
		return outreach.Content{}, fmt.Errorf("strategy analysis: %w", err)
	}

	raw, err := g.complete(ctx, fmt.Sprintf(coldOpenWritingPrompt, strategy, recipient, describeSender(g.agency), greetingName(identity)), g.temperature)
	if err != nil {
		return outreach.Content{}, fmt.Errorf("write email: %w", err)
	}

	var draft struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := decodeJSONObject(raw, &draft); err != nil {
		return outreach.Content{}, err
	}

	subject, body, err := g.finish(identity, draft.Subject, draft.Body)
	if err != nil {
		return outreach.Content{}, err
	}
	if subject == "" {
		return outreach.Content{}, errors.New("model returned an empty subject")
	}
	return outreach.Content{Subject: subject, Body: body}, nil
}

func (g *Generator) GenerateReply(ctx context.Context, identity leads.Identity, history []leads.HistoryEntry) (outreach.Content, error) {
	content, err := g.reply(ctx, identity, history)
	if err != nil {
		return outreach.Content{}, &outreach.GenerationError{Mode: leads.ModeReply, Err: err}
	}
	return content, nil
}

func (g *Generator) reply(ctx context.Context, identity leads.Identity, history []leads.HistoryEntry) (outreach.Content, error) {
	hasInbound := false
	for _, entry := range history {
		if !entry.IsMessage() || entry.Direction != leads.DirectionInbound {
			continue
		}
		hasInbound = true
		screen := ScreenInbound(entry.Text)
		if screen.Blocked {
			return outreach.Content{}, fmt.Errorf("prospect message flagged as prompt injection (%s)", strings.Join(screen.Reasons, ", "))
		}
		if screen.Suspicious() {
			g.logger.Warn("suspicious prospect message", "email", identity.Email, "score", screen.Score, "reasons", screen.Reasons)
		}
	}
	if !hasInbound {
		return outreach.Content{}, errNoInbound
	}

	transcript := formatTranscript(history, g.agency.Name)
	prospect := describeRecipient(identity, "")

	rawAnalysis, err := g.complete(ctx, fmt.Sprintf(stageAnalysisPrompt, prospect, transcript, strings.Join(stages, ", ")), 0.3)
	if err != nil {
		return outreach.Content{}, fmt.Errorf("stage analysis: %w", err)
	}
	var analysis struct {
		Stage    string `json:"stage"`
		Concerns string `json:"concerns"`
		NextStep string `json:"next_step"`
	}
	if err := decodeJSONObject(rawAnalysis, &analysis); err != nil {
		// The analysis only steers the reply, so a loose answer is tolerated.
		g.logger.Warn("stage analysis was not valid JSON", "email", identity.Email, "error", err)
	}
	stage := normalizeStage(analysis.Stage)

	raw, err := g.complete(ctx, fmt.Sprintf(replyWritingPrompt,
		prospect, describeSender(g.agency), transcript,
		stage, analysis.Concerns, analysis.NextStep, greetingName(identity)), g.temperature)
	if err != nil {
		return outreach.Content{}, fmt.Errorf("write reply: %w", err)
	}

	subject, body, err := g.finish(identity, replySubject(history), stripSubjectLine(raw))
	if err != nil {
		return outreach.Content{}, err
	}
	return outreach.Content{Subject: subject, Body: body, Stage: stage}, nil
}

func (g *Generator) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := g.llm.Complete(ctx, LLMRequest{
		System:      []string{writerSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   g.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errEmptyOutput
	}
	return text, nil
}

// finish substitutes known placeholders and rejects text that is empty,
// still templated or leaking internal material.
func (g *Generator) finish(identity leads.Identity, subject, body string) (string, string, error) {
	placeholders := Placeholders{
		Name:       identity.Name,
		Company:    identity.Company,
		SenderName: g.agency.SenderName,
		Agency:     g.agency.Name,
	}
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if body == "" {
		return "", "", errEmptyOutput
	}

	var err error
	if subject, err = ResolvePlaceholders(subject, placeholders); err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}
	if body, err = ResolvePlaceholders(body, placeholders); err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}
	if guard := ScanOutputForLeaks(subject + "\n" + body); guard.Leaked {
		return "", "", fmt.Errorf("output blocked by leak guard (%s)", strings.Join(guard.Reasons, ", "))
	}
	return subject, body, nil
}

func greetingName(identity leads.Identity) string {
	if first := identity.FirstName(); first != "" {
		return first
	}
	return "there"
}

// replySubject threads the reply under the first outbound subject.
func replySubject(history []leads.HistoryEntry) string {
	subject := leads.Lead{History: history}.ThreadSubject()
	if subject == "" {
		for _, entry := range history {
			if entry.IsMessage() && entry.Subject != "" {
				subject = entry.Subject
				break
			}
		}
	}
	if subject == "" {
		return "Re: Following up"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

func stripSubjectLine(text string) string {
	text = strings.TrimSpace(text)
	if first, rest, ok := strings.Cut(text, "\n"); ok && strings.HasPrefix(strings.ToLower(strings.TrimSpace(first)), "subject:") {
		return strings.TrimSpace(rest)
	}
	return text
}

// decodeJSONObject extracts the outermost JSON object from model text, which
// may be wrapped in prose or a code fence.
func decodeJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return errMalformedOutput
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedOutput, err)
	}
	return nil
}
