package outreach

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
)

var defaultPolicy = Policy{MaxAttempts: 3, ReplyDetection: ReplyDetectionStatus}

func TestClassifyPriorityOrder(t *testing.T) {
	sent := leads.OutboundMessage(at(0), leads.ModeColdOpen, "Idea", "Hi", "")
	reply := leads.InboundMessage(at(5), "Re: Idea", "Tell me more")

	tests := []struct {
		name   string
		lead   leads.Lead
		policy Policy
		action Action
		mode   leads.Mode
		next   leads.Status
	}{
		{"new opens cold", newLead("a", leads.StatusNew), defaultPolicy, ActionColdOpen, leads.ModeColdOpen, leads.StatusAwaitingReply},
		{"replied gets reply", newLead("b", leads.StatusReplied, sent, reply), defaultPolicy, ActionReply, leads.ModeReply, leads.StatusResponded},
		{"awaiting skipped", newLead("c", leads.StatusAwaitingReply, sent), defaultPolicy, ActionSkip, "", ""},
		{"responded skipped", newLead("d", leads.StatusResponded, sent, reply, sent), defaultPolicy, ActionSkip, "", ""},
		{"failed cold open retried", newLead("e", leads.StatusFailed, leads.FailureMarker(at(1), leads.ModeColdOpen, errLLMDown)), defaultPolicy, ActionRetry, leads.ModeColdOpen, leads.StatusAwaitingReply},
		{"failed reply retried as reply", newLead("f", leads.StatusFailed, sent, reply, leads.FailureMarker(at(6), leads.ModeReply, errLLMDown)), defaultPolicy, ActionRetry, leads.ModeReply, leads.StatusResponded},
		{"failed without marker infers mode", newLead("g", leads.StatusFailed, sent, reply), defaultPolicy, ActionRetry, leads.ModeReply, leads.StatusResponded},
		{"history mode picks unanswered inbound", newLead("h", leads.StatusAwaitingReply, sent, reply), Policy{MaxAttempts: 3, ReplyDetection: ReplyDetectionHistory}, ActionReply, leads.ModeReply, leads.StatusResponded},
		{"status mode ignores unanswered inbound", newLead("i", leads.StatusAwaitingReply, sent, reply), defaultPolicy, ActionSkip, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Classify(tt.lead, tt.policy)
			assert.Equal(t, tt.action, plan.Action)
			assert.Equal(t, tt.mode, plan.Mode)
			assert.Equal(t, tt.next, plan.NextStatus)
		})
	}
}

func TestClassifyRetryBudget(t *testing.T) {
	fail := leads.FailureMarker(at(1), leads.ModeColdOpen, errLLMDown)

	below := Classify(newLead("a", leads.StatusFailed, fail, fail), defaultPolicy)
	assert.Equal(t, ActionRetry, below.Action)
	assert.Equal(t, 3, below.Attempt)

	atMax := Classify(newLead("b", leads.StatusFailed, fail, fail, fail), defaultPolicy)
	assert.Equal(t, ActionSkip, atMax.Action)
	assert.True(t, atMax.Exhausted)
	assert.Equal(t, ReasonRetryExhausted, atMax.Reason)
}

func TestNewRouterRejectsInvalidPolicy(t *testing.T) {
	_, err := NewRouter(&fakeGenerator{}, nil, Policy{MaxAttempts: 0})
	require.Error(t, err)

	_, err = NewRouter(&fakeGenerator{}, nil, Policy{MaxAttempts: 2, ReplyDetection: "psychic"})
	require.Error(t, err)

	r, err := NewRouter(&fakeGenerator{}, nil, Policy{MaxAttempts: 2})
	require.NoError(t, err)
	assert.Equal(t, ReplyDetectionStatus, r.Policy().ReplyDetection)
}

func TestRouteNewAlwaysColdOpens(t *testing.T) {
	gen := &fakeGenerator{}
	r, err := NewRouter(gen, nil, defaultPolicy)
	require.NoError(t, err)

	lead := newLead("a", leads.StatusNew)
	lead.CompanyBackground = "Makes rockets"
	d := r.Route(context.Background(), lead)

	require.NoError(t, d.Err)
	assert.Equal(t, ActionColdOpen, d.Action)
	assert.Equal(t, leads.StatusAwaitingReply, d.NextStatus)
	assert.Equal(t, "Makes rockets", gen.lastBackground)
	cold, reply := gen.calls()
	assert.Equal(t, 1, cold)
	assert.Equal(t, 0, reply)
}

type staticBriefing struct {
	briefing Briefing
	err      error
}

func (s staticBriefing) Brief(ctx context.Context, lead leads.Lead) (Briefing, error) {
	return s.briefing, s.err
}

func TestRoutePassesBriefingThrough(t *testing.T) {
	gen := &fakeGenerator{}
	items := []PortfolioItem{{Title: "Shop", URL: "https://example.com/shop"}}
	r, err := NewRouter(gen, staticBriefing{briefing: Briefing{CompanyBackground: "bg", Portfolio: items}}, defaultPolicy)
	require.NoError(t, err)

	d := r.Route(context.Background(), newLead("a", leads.StatusNew))
	require.NoError(t, d.Err)
	assert.Equal(t, "bg", gen.lastBackground)
	assert.Equal(t, items, gen.lastPortfolio)
}

func TestRouteBriefingFailureIsGenerationError(t *testing.T) {
	gen := &fakeGenerator{}
	r, err := NewRouter(gen, staticBriefing{err: errors.New("scrape blocked")}, defaultPolicy)
	require.NoError(t, err)

	d := r.Route(context.Background(), newLead("a", leads.StatusNew))
	var genErr *GenerationError
	require.True(t, errors.As(d.Err, &genErr))
	assert.Equal(t, leads.StatusFailed, d.NextStatus)
	cold, _ := gen.calls()
	assert.Equal(t, 0, cold)
}

func TestRouteReplyReceivesFullHistory(t *testing.T) {
	gen := &fakeGenerator{}
	r, err := NewRouter(gen, nil, defaultPolicy)
	require.NoError(t, err)

	history := []leads.HistoryEntry{
		leads.OutboundMessage(at(0), leads.ModeColdOpen, "Idea", "Hi", ""),
		leads.InboundMessage(at(1), "Re: Idea", "Interesting"),
		leads.OutboundMessage(at(2), leads.ModeReply, "Re: Idea", "Great", "qualifying"),
		leads.InboundMessage(at(3), "Re: Idea", "Price?"),
	}
	d := r.Route(context.Background(), newLead("b", leads.StatusReplied, history...))

	require.NoError(t, d.Err)
	assert.Equal(t, history, gen.lastHistory)
	assert.Equal(t, "discovery", d.Content.Stage)
}

func TestRouteGeneratorFailureYieldsFailed(t *testing.T) {
	gen := &fakeGenerator{failEmails: map[string]error{"a@example.com": errLLMDown}}
	r, err := NewRouter(gen, nil, defaultPolicy)
	require.NoError(t, err)

	d := r.Route(context.Background(), newLead("a", leads.StatusNew))

	assert.Equal(t, leads.StatusFailed, d.NextStatus)
	var genErr *GenerationError
	require.True(t, errors.As(d.Err, &genErr))
	assert.Equal(t, leads.ModeColdOpen, genErr.Mode)
	assert.ErrorIs(t, d.Err, errLLMDown)
	cold, _ := gen.calls()
	assert.Equal(t, 1, cold, "router must not retry internally")
}

type emptyGenerator struct{ fakeGenerator }

func (g *emptyGenerator) GenerateColdOpen(ctx context.Context, identity leads.Identity, background string, portfolio []PortfolioItem) (Content, error) {
	return Content{Subject: "Hello", Body: "   "}, nil
}

func TestRouteRejectsEmptyContent(t *testing.T) {
	r, err := NewRouter(&emptyGenerator{}, nil, defaultPolicy)
	require.NoError(t, err)

	d := r.Route(context.Background(), newLead("a", leads.StatusNew))
	assert.Equal(t, leads.StatusFailed, d.NextStatus)
	assert.ErrorIs(t, d.Err, errEmptyContent)
}

func TestRouteSkipDoesNotCallGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	r, err := NewRouter(gen, nil, defaultPolicy)
	require.NoError(t, err)

	d := r.Route(context.Background(), newLead("c", leads.StatusAwaitingReply))
	assert.True(t, d.Skip())
	cold, reply := gen.calls()
	assert.Zero(t, cold+reply)
}

func TestParseReplyDetection(t *testing.T) {
	got, err := ParseReplyDetection(" History ")
	require.NoError(t, err)
	assert.Equal(t, ReplyDetectionHistory, got)

	got, err = ParseReplyDetection("")
	require.NoError(t, err)
	assert.Equal(t, ReplyDetectionStatus, got)
}
