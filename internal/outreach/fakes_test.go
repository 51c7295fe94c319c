package outreach

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
)

type fakeGenerator struct {
	mu             sync.Mutex
	coldOpenCalls  int
	replyCalls     int
	lastHistory    []leads.HistoryEntry
	lastBackground string
	lastPortfolio  []PortfolioItem
	failEmails     map[string]error
	panicEmail     string
	blockEmail     string
}

func (g *fakeGenerator) GenerateColdOpen(ctx context.Context, identity leads.Identity, background string, portfolio []PortfolioItem) (Content, error) {
	g.mu.Lock()
	g.coldOpenCalls++
	g.lastBackground = background
	g.lastPortfolio = portfolio
	g.mu.Unlock()
	if err := g.behave(ctx, identity); err != nil {
		return Content{}, err
	}
	return Content{Subject: "Idea for " + identity.Company, Body: "Hi " + identity.FirstName()}, nil
}

func (g *fakeGenerator) GenerateReply(ctx context.Context, identity leads.Identity, history []leads.HistoryEntry) (Content, error) {
	g.mu.Lock()
	g.replyCalls++
	g.lastHistory = append([]leads.HistoryEntry(nil), history...)
	g.mu.Unlock()
	if err := g.behave(ctx, identity); err != nil {
		return Content{}, err
	}
	return Content{Subject: "Re: Idea", Body: "Thanks for getting back", Stage: "discovery"}, nil
}

func (g *fakeGenerator) behave(ctx context.Context, identity leads.Identity) error {
	if identity.Email == g.panicEmail {
		panic("generator exploded")
	}
	if identity.Email == g.blockEmail {
		<-ctx.Done()
		return ctx.Err()
	}
	if err, ok := g.failEmails[identity.Email]; ok {
		return err
	}
	return nil
}

func (g *fakeGenerator) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.coldOpenCalls, g.replyCalls
}

type fakeSender struct {
	mu         sync.Mutex
	sent       []string
	failEmails map[string]error
}

func (s *fakeSender) Send(ctx context.Context, identity leads.Identity, content Content) (Receipt, error) {
	if err, ok := s.failEmails[identity.Email]; ok {
		return Receipt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, identity.Email)
	return Receipt{MessageID: "msg-" + identity.Email, From: "agency@example.com"}, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// flakyStore wraps the in-memory store with injectable failures.
type flakyStore struct {
	*leads.InMemoryRepository
	fetchErr      error
	failUpdateIDs map[string]error
}

func (s *flakyStore) FetchLeads(ctx context.Context) ([]leads.Lead, error) {
	if s.fetchErr != nil {
		return nil, &leads.StoreError{Op: "fetch", Err: s.fetchErr}
	}
	return s.InMemoryRepository.FetchLeads(ctx)
}

func (s *flakyStore) UpdateLead(ctx context.Context, update leads.LeadUpdate) error {
	if err, ok := s.failUpdateIDs[update.ID]; ok {
		return &leads.StoreError{Op: "update", LeadID: update.ID, Err: err}
	}
	return s.InMemoryRepository.UpdateLead(ctx, update)
}

type captureRecorder struct {
	reports []Report
}

func (r *captureRecorder) RecordCycle(ctx context.Context, report Report) error {
	r.reports = append(r.reports, report)
	return nil
}

var errLLMDown = errors.New("llm unavailable")

func newLead(id string, status leads.Status, history ...leads.HistoryEntry) leads.Lead {
	return leads.Lead{
		ID:       id,
		Identity: leads.Identity{Name: "Lead " + id, Email: id + "@example.com", Company: "Co " + id},
		Status:   status,
		History:  history,
	}
}

func at(minute int) time.Time {
	return time.Date(2024, 5, 1, 9, minute, 0, 0, time.UTC)
}
