package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/locks"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

var fixedNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

type fakeMailbox struct {
	messages []Message
	fetchErr error
	seenErr  error

	mu     sync.Mutex
	seen   []uint32
	since  time.Time
	closed bool
}

func (f *fakeMailbox) FetchUnseen(_ context.Context, since time.Time, _ int) ([]Message, error) {
	f.since = since
	return f.messages, f.fetchErr
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, uids...)
	return f.seenErr
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type fakeDialer struct {
	boxes map[string]*fakeMailbox
}

func (d fakeDialer) Dial(_ context.Context, account Account) (Mailbox, error) {
	box, ok := d.boxes[account.Email]
	if !ok {
		return nil, errors.New("login failed")
	}
	return box, nil
}

func seedLeads() *leads.InMemoryRepository {
	sent := leads.OutboundMessage(fixedNow.Add(-48*time.Hour), leads.ModeColdOpen, "Intro", "pitch", "")
	return leads.NewInMemoryRepository(
		leads.Lead{ID: "awaiting", Identity: leads.Identity{Name: "Dana", Email: "Dana@Acme.test"}, Status: leads.StatusAwaitingReply, History: []leads.HistoryEntry{sent}},
		leads.Lead{ID: "responded", Identity: leads.Identity{Name: "Lee", Email: "lee@beta.test"}, Status: leads.StatusResponded, History: []leads.HistoryEntry{sent}},
		leads.Lead{ID: "failed", Identity: leads.Identity{Name: "Kim", Email: "kim@gamma.test"}, Status: leads.StatusFailed, History: []leads.HistoryEntry{sent}},
	)
}

func TestCheckRepliesRecordsAndFlags(t *testing.T) {
	store := seedLeads()
	box := &fakeMailbox{messages: []Message{
		{UID: 1, From: "dana@acme.test", Subject: "Re: Intro", Date: fixedNow.Add(-time.Hour), Text: "Sounds good, tell me more."},
		{UID: 2, From: "newsletter@vendor.test", Subject: "Deals", Date: fixedNow, Text: "Sale!"},
		{UID: 3, From: "lee@beta.test", Subject: "Re: Intro", Date: fixedNow.Add(-30 * time.Minute), Text: "Pricing?"},
		{UID: 4, From: "kim@gamma.test", Date: fixedNow.Add(-10 * time.Minute), Text: "Still interested"},
	}}
	monitor := NewMonitor(store, fakeDialer{boxes: map[string]*fakeMailbox{"sam@agency.test": box}}, []Account{{Email: "sam@agency.test", Password: "x"}}, logging.Discard()).
		WithClock(func() time.Time { return fixedNow }).
		WithWindow(24*time.Hour, 10)

	report, err := monitor.CheckReplies(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Mailboxes, 1)
	mr := report.Mailboxes[0]
	assert.Equal(t, 4, mr.Fetched)
	assert.Equal(t, 3, mr.Recorded)
	assert.Equal(t, 1, mr.Unmatched)
	assert.Equal(t, 3, report.Recorded)
	assert.ElementsMatch(t, []uint32{1, 3, 4}, box.seen)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), box.since)
	assert.True(t, box.closed)

	ctx := context.Background()
	awaiting, _ := store.GetLead(ctx, "awaiting")
	assert.Equal(t, leads.StatusReplied, awaiting.Status)
	last, _ := awaiting.LastMessage()
	assert.Equal(t, leads.DirectionInbound, last.Direction)
	assert.Equal(t, "Sounds good, tell me more.", last.Text)

	responded, _ := store.GetLead(ctx, "responded")
	assert.Equal(t, leads.StatusReplied, responded.Status)

	failed, _ := store.GetLead(ctx, "failed")
	assert.Equal(t, leads.StatusFailed, failed.Status)
	assert.Len(t, failed.History, 2)
}

func TestCheckRepliesDeduplicatesRedelivery(t *testing.T) {
	store := seedLeads()
	msg := Message{UID: 7, From: "dana@acme.test", Date: fixedNow.Add(-time.Hour), Text: "Yes please"}
	box := &fakeMailbox{messages: []Message{msg}}
	monitor := NewMonitor(store, fakeDialer{boxes: map[string]*fakeMailbox{"sam@agency.test": box}}, []Account{{Email: "sam@agency.test"}}, logging.Discard()).
		WithClock(func() time.Time { return fixedNow })

	_, err := monitor.CheckReplies(context.Background())
	require.NoError(t, err)
	report, err := monitor.CheckReplies(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Mailboxes[0].Duplicate)
	lead, _ := store.GetLead(context.Background(), "awaiting")
	assert.Len(t, lead.Messages(), 2)
	assert.Equal(t, []uint32{7, 7}, box.seen)
}

func TestCheckRepliesDeduplicatesUndatedRedelivery(t *testing.T) {
	store := seedLeads()
	box := &fakeMailbox{
		messages: []Message{{UID: 9, From: "dana@acme.test", Subject: "Re: Intro", Text: "Call me Monday"}},
		seenErr:  errors.New("imap store failed"),
	}
	now := fixedNow
	monitor := NewMonitor(store, fakeDialer{boxes: map[string]*fakeMailbox{"sam@agency.test": box}}, []Account{{Email: "sam@agency.test"}}, logging.Discard()).
		WithClock(func() time.Time { return now })

	first, err := monitor.CheckReplies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Mailboxes[0].Recorded)

	now = now.Add(5 * time.Minute)
	second, err := monitor.CheckReplies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Mailboxes[0].Duplicate)
	assert.Zero(t, second.Mailboxes[0].Recorded)

	lead, _ := store.GetLead(context.Background(), "awaiting")
	require.Len(t, lead.Messages(), 2)
	last, _ := lead.LastMessage()
	assert.Equal(t, fixedNow, last.At)
}

func TestCheckRepliesIsolatesFailures(t *testing.T) {
	store := seedLeads()
	locker := locks.NewLocalLocker()
	held, err := locker.Acquire(context.Background(), outreach.LeadLockKey("awaiting"), time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	good := &fakeMailbox{messages: []Message{
		{UID: 1, From: "dana@acme.test", Date: fixedNow, Text: "locked out"},
		{UID: 2, From: "lee@beta.test", Date: fixedNow, Text: "recorded"},
	}}
	broken := &fakeMailbox{fetchErr: errors.New("imap timeout")}
	dialer := fakeDialer{boxes: map[string]*fakeMailbox{"a@agency.test": good, "b@agency.test": broken}}
	accounts := []Account{{Email: "missing@agency.test"}, {Email: "a@agency.test"}, {Email: "b@agency.test"}}

	monitor := NewMonitor(store, dialer, accounts, logging.Discard()).WithLeadLocker(locker, time.Minute)
	report, err := monitor.CheckReplies(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Mailboxes, 3)
	assert.Contains(t, report.Mailboxes[0].Error, "login failed")
	assert.Equal(t, 1, report.Mailboxes[1].Recorded)
	assert.Equal(t, 1, report.Mailboxes[1].Failed)
	assert.Contains(t, report.Mailboxes[2].Error, "imap timeout")
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, []uint32{2}, good.seen)
}

type failingStore struct{ leads.Store }

func (failingStore) FetchLeads(context.Context) ([]leads.Lead, error) {
	return nil, errors.New("sheet unavailable")
}

func TestCheckRepliesFetchFailureIsFatal(t *testing.T) {
	monitor := NewMonitor(failingStore{}, fakeDialer{}, nil, logging.Discard())
	_, err := monitor.CheckReplies(context.Background())
	require.ErrorContains(t, err, "sheet unavailable")
}

type stubChecker struct {
	report Report
	err    error
}

func (s stubChecker) CheckReplies(context.Context) (Report, error) { return s.report, s.err }

func TestHandlerCheckReplies(t *testing.T) {
	w := httptest.NewRecorder()
	NewHandler(stubChecker{report: Report{Recorded: 2}}, logging.Discard()).
		CheckReplies(w, httptest.NewRequest(http.MethodPost, "/outreach/replies/check", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, 2, got.Recorded)

	w = httptest.NewRecorder()
	NewHandler(stubChecker{err: errors.New("down")}, nil).
		CheckReplies(w, httptest.NewRequest(http.MethodPost, "/outreach/replies/check", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
