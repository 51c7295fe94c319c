package outreach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/locks"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

type harness struct {
	store      *flakyStore
	generator  *fakeGenerator
	sender     *fakeSender
	dispatcher *Dispatcher
	recorder   *captureRecorder
}

func newHarness(t *testing.T, seed ...leads.Lead) *harness {
	t.Helper()
	h := &harness{
		store:     &flakyStore{InMemoryRepository: leads.NewInMemoryRepository(seed...), failUpdateIDs: map[string]error{}},
		generator: &fakeGenerator{failEmails: map[string]error{}},
		sender:    &fakeSender{failEmails: map[string]error{}},
		recorder:  &captureRecorder{},
	}
	router, err := NewRouter(h.generator, nil, defaultPolicy)
	require.NoError(t, err)
	h.dispatcher = NewDispatcher(h.store, router, h.sender, logging.Discard()).
		WithRecorder(h.recorder).
		WithGenerationTimeout(200 * time.Millisecond)
	return h
}

func (h *harness) lead(t *testing.T, id string) leads.Lead {
	t.Helper()
	lead, err := h.store.GetLead(context.Background(), id)
	require.NoError(t, err)
	return lead
}

func TestRunCycleNewLeadBecomesAwaitingReply(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ResultApplied, report.Outcomes[0].Result)
	assert.Equal(t, ActionColdOpen, report.Outcomes[0].Action)

	lead := h.lead(t, "a")
	assert.Equal(t, leads.StatusAwaitingReply, lead.Status)
	require.Len(t, lead.Messages(), 1)
	assert.Equal(t, leads.DirectionOutbound, lead.History[0].Direction)
	assert.Equal(t, leads.ModeColdOpen, lead.History[0].Mode)
	assert.Equal(t, 1, h.sender.count())
}

func TestRunCycleRepliedLeadBecomesResponded(t *testing.T) {
	history := []leads.HistoryEntry{
		leads.OutboundMessage(at(0), leads.ModeColdOpen, "Idea", "Hi", ""),
		leads.InboundMessage(at(1), "Re: Idea", "Sounds good"),
	}
	h := newHarness(t, newLead("b", leads.StatusReplied, history...))

	_, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	lead := h.lead(t, "b")
	assert.Equal(t, leads.StatusResponded, lead.Status)
	assert.Len(t, lead.Messages(), 3)
	assert.Equal(t, history, h.generator.lastHistory)
	assert.Equal(t, "discovery", lead.History[2].Stage)
}

func TestRunCycleGenerationFailureMarksFailed(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	h.generator.failEmails["a@example.com"] = errLLMDown

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	out := report.Outcomes[0]
	assert.Equal(t, ResultFailed, out.Result)
	assert.Equal(t, "generation", out.ErrorKind)
	assert.Equal(t, leads.StatusFailed, out.To)

	lead := h.lead(t, "a")
	assert.Equal(t, leads.StatusFailed, lead.Status)
	assert.Empty(t, lead.Messages(), "conversation messages must be unchanged")
	assert.Equal(t, 1, lead.FailedAttempts())
	assert.Zero(t, h.sender.count())
}

func TestRunCycleRetriesFailedWithOriginalMode(t *testing.T) {
	sent := leads.OutboundMessage(at(0), leads.ModeColdOpen, "Idea", "Hi", "")
	reply := leads.InboundMessage(at(1), "Re: Idea", "Tell me more")
	fail := leads.FailureMarker(at(2), leads.ModeReply, errLLMDown)
	h := newHarness(t, newLead("f", leads.StatusFailed, sent, reply, fail))

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, ActionRetry, report.Outcomes[0].Action)
	assert.Equal(t, leads.ModeReply, report.Outcomes[0].Mode)
	_, replies := h.generator.calls()
	assert.Equal(t, 1, replies)
	assert.Equal(t, leads.StatusResponded, h.lead(t, "f").Status)
}

func TestRunCycleExhaustedRetryStaysFailed(t *testing.T) {
	fail := leads.FailureMarker(at(2), leads.ModeColdOpen, errLLMDown)
	h := newHarness(t, newLead("x", leads.StatusFailed, fail, fail, fail))

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, ResultSkipped, report.Outcomes[0].Result)
	assert.Equal(t, ReasonRetryExhausted, report.Outcomes[0].Reason)
	cold, replies := h.generator.calls()
	assert.Zero(t, cold+replies)
	assert.Equal(t, leads.StatusFailed, h.lead(t, "x").Status)
}

func TestRunCycleIsolatesFailuresAndKeepsOrder(t *testing.T) {
	h := newHarness(t,
		newLead("a", leads.StatusNew),
		newLead("b", leads.StatusNew),
		newLead("c", leads.StatusNew),
		newLead("d", leads.StatusAwaitingReply),
	)
	h.generator.failEmails["b@example.com"] = errLLMDown
	h.dispatcher.WithConcurrency(4)

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	ids := make([]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		ids = append(ids, o.LeadID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, leads.StatusAwaitingReply, h.lead(t, "a").Status)
	assert.Equal(t, leads.StatusFailed, h.lead(t, "b").Status)
	assert.Equal(t, leads.StatusAwaitingReply, h.lead(t, "c").Status)
}

func TestRunCycleSecondPassIsNoOp(t *testing.T) {
	history := []leads.HistoryEntry{
		leads.OutboundMessage(at(0), leads.ModeColdOpen, "Idea", "Hi", ""),
		leads.InboundMessage(at(1), "Re: Idea", "Sounds good"),
	}
	h := newHarness(t, newLead("a", leads.StatusNew), newLead("b", leads.StatusReplied, history...))

	_, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	require.Equal(t, 2, h.sender.count())

	second, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 2, h.sender.count(), "second pass must not send again")
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, h.recorder.reports, 2)
}

func TestRunCycleTransportFailureMarksFailed(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	h.sender.failEmails["a@example.com"] = errors.New("550 mailbox unavailable")

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, "transport", report.Outcomes[0].ErrorKind)
	lead := h.lead(t, "a")
	assert.Equal(t, leads.StatusFailed, lead.Status)
	assert.Empty(t, lead.Messages())
}

func TestRunCycleStoreFailureAfterSendIsJournaled(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	h.store.failUpdateIDs["a"] = errors.New("sheet quota exceeded")

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	out := report.Outcomes[0]
	assert.Equal(t, ResultApplied, out.Result)
	assert.True(t, out.Sent)
	assert.Equal(t, ReasonStoreDeferred, out.Reason)
	assert.Equal(t, "store", out.ErrorKind)
	assert.Equal(t, leads.StatusNew, h.lead(t, "a").Status, "lead must not be recorded as FAILED")

	// store still down: the lead is skipped instead of being re-sent
	second, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, ReasonSendPending, second.Outcomes[0].Reason)
	assert.Equal(t, 1, h.sender.count())

	// store recovers: the journaled send is committed without sending again
	delete(h.store.failUpdateIDs, "a")
	third, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, third.Reconciled)
	assert.Equal(t, ResultSkipped, third.Outcomes[0].Result)
	assert.Equal(t, 1, h.sender.count())

	lead := h.lead(t, "a")
	assert.Equal(t, leads.StatusAwaitingReply, lead.Status)
	assert.Len(t, lead.Messages(), 1)
}

func TestRunCycleReconcileKeepsReplyReceivedMeanwhile(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	h.dispatcher.WithClock(func() time.Time { return at(0) })
	h.store.failUpdateIDs["a"] = errors.New("sheet quota exceeded")

	first, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	require.Equal(t, ReasonStoreDeferred, first.Outcomes[0].Reason)

	// the reply monitor records the prospect's answer before the send lands
	delete(h.store.failUpdateIDs, "a")
	require.NoError(t, h.store.UpdateLead(context.Background(), leads.LeadUpdate{
		ID:              "a",
		ExpectedVersion: 0,
		Status:          leads.StatusNew,
		Append:          []leads.HistoryEntry{leads.InboundMessage(at(5), "Re: Idea for Co a", "Tell me more")},
	}))

	second, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Reconciled)
	assert.Equal(t, ActionReply, second.Outcomes[0].Action)
	assert.Equal(t, ResultApplied, second.Outcomes[0].Result)

	_, replies := h.generator.calls()
	assert.Equal(t, 1, replies)
	assert.Equal(t, 2, h.sender.count())
	lead := h.lead(t, "a")
	assert.Equal(t, leads.StatusResponded, lead.Status)
	require.Len(t, lead.Messages(), 3)
}

type brokenJournal struct {
	*MemoryJournal
}

func (brokenJournal) Record(context.Context, JournalEntry) error {
	return errors.New("redis unavailable")
}

func TestRunCycleUnjournaledSendIsNotFailed(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	h.dispatcher.WithJournal(brokenJournal{NewMemoryJournal()})
	h.store.failUpdateIDs["a"] = errors.New("sheet quota exceeded")

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	out := report.Outcomes[0]
	assert.Equal(t, ResultUnrecorded, out.Result)
	assert.Equal(t, ReasonSendUnrecorded, out.Reason)
	assert.True(t, out.Sent)
	assert.Equal(t, leads.StatusNew, out.To)
	assert.Contains(t, out.Error, "redis unavailable")
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, report.Unrecorded)
	assert.Equal(t, leads.StatusNew, h.lead(t, "a").Status)
}

func TestRunCycleFetchFailureIsFatal(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	h.store.fetchErr = errors.New("sheets api down")

	_, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.Error(t, err)
	var storeErr *leads.StoreError
	assert.True(t, errors.As(err, &storeErr))
	assert.Zero(t, h.sender.count())
}

func TestRunCycleRejectsConcurrentCycle(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	locker := locks.NewLocalLocker()
	h.dispatcher.WithCycleLocker(locker, time.Minute)

	held, err := locker.Acquire(context.Background(), cycleLockKey, time.Minute)
	require.NoError(t, err)

	_, err = h.dispatcher.RunCycle(context.Background(), "test")
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.Zero(t, h.sender.count())

	require.NoError(t, held.Release(context.Background()))
	_, err = h.dispatcher.RunCycle(context.Background(), "test")
	assert.NoError(t, err)
}

func TestRunCycleSkipsLockedLead(t *testing.T) {
	h := newHarness(t, newLead("a", leads.StatusNew))
	locker := locks.NewLocalLocker()
	h.dispatcher.WithLeadLocker(locker, time.Minute)

	held, err := locker.Acquire(context.Background(), LeadLockKey("a"), time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, ReasonLeadLocked, report.Outcomes[0].Reason)
	assert.Equal(t, leads.StatusNew, h.lead(t, "a").Status)
}

func TestRunCycleGenerationTimeout(t *testing.T) {
	h := newHarness(t, newLead("slow", leads.StatusNew), newLead("fast", leads.StatusNew))
	h.generator.blockEmail = "slow@example.com"
	h.dispatcher.WithGenerationTimeout(20 * time.Millisecond)

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, ResultFailed, report.Outcomes[0].Result)
	assert.ErrorIs(t, report.Outcomes[0].Err, context.DeadlineExceeded)
	assert.Equal(t, ResultApplied, report.Outcomes[1].Result)
	assert.Equal(t, leads.StatusFailed, h.lead(t, "slow").Status)
}

func TestRunCycleRecoversFromPanic(t *testing.T) {
	h := newHarness(t, newLead("boom", leads.StatusNew), newLead("ok", leads.StatusNew))
	h.generator.panicEmail = "boom@example.com"

	report, err := h.dispatcher.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, report.Outcomes[0].Result)
	assert.Equal(t, ResultApplied, report.Outcomes[1].Result)
}
