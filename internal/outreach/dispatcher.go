package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/locks"
	"github.com/wolfman30/outreach-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var dispatchTracer = otel.Tracer("outreach.dispatch")

const cycleLockKey = "outreach:cycle"

// LeadLockKey is the lock key that serializes writers of one lead.
func LeadLockKey(leadID string) string {
	return "outreach:lead:" + leadID
}

// Dispatcher runs outreach cycles: fetch every lead, route it, send and record.
type Dispatcher struct {
	store   leads.Store
	router  *Router
	sender  Sender
	logger  *logging.Logger
	metrics *metrics.OutreachMetrics

	cycleLocker locks.Locker
	leadLocker  locks.Locker
	journal     SendJournal
	recorder    Recorder

	concurrency       int
	generationTimeout time.Duration
	cycleLockTTL      time.Duration
	leadLockTTL       time.Duration
	now               func() time.Time
}

func NewDispatcher(store leads.Store, router *Router, sender Sender, logger *logging.Logger) *Dispatcher {
	if store == nil {
		panic("outreach: lead store required")
	}
	if router == nil {
		panic("outreach: router required")
	}
	if sender == nil {
		panic("outreach: sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:             store,
		router:            router,
		sender:            sender,
		logger:            logger,
		cycleLocker:       locks.NewLocalLocker(),
		leadLocker:        locks.NewLocalLocker(),
		journal:           NewMemoryJournal(),
		concurrency:       1,
		generationTimeout: 90 * time.Second,
		cycleLockTTL:      30 * time.Minute,
		leadLockTTL:       5 * time.Minute,
		now:               time.Now,
	}
}

func (d *Dispatcher) WithCycleLocker(l locks.Locker, ttl time.Duration) *Dispatcher {
	if l != nil {
		d.cycleLocker = l
	}
	if ttl > 0 {
		d.cycleLockTTL = ttl
	}
	return d
}

func (d *Dispatcher) WithLeadLocker(l locks.Locker, ttl time.Duration) *Dispatcher {
	if l != nil {
		d.leadLocker = l
	}
	if ttl > 0 {
		d.leadLockTTL = ttl
	}
	return d
}

func (d *Dispatcher) WithJournal(j SendJournal) *Dispatcher {
	if j != nil {
		d.journal = j
	}
	return d
}

func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.OutreachMetrics) *Dispatcher {
	d.metrics = m
	return d
}

func (d *Dispatcher) WithConcurrency(n int) *Dispatcher {
	if n > 0 {
		d.concurrency = n
	}
	return d
}

func (d *Dispatcher) WithGenerationTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.generationTimeout = timeout
	}
	return d
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// RunCycle processes every lead once. Outcomes are reported in store order.
// Only a failure to fetch leads (or to take the cycle lock) fails the cycle;
// per-lead errors are captured in the outcomes.
func (d *Dispatcher) RunCycle(ctx context.Context, trigger string) (Report, error) {
	report := Report{
		CycleID:   uuid.NewString(),
		Trigger:   trigger,
		StartedAt: d.now().UTC(),
	}
	logger := d.logger.ForCycle(report.CycleID)

	ctx, span := dispatchTracer.Start(ctx, "outreach.cycle", trace.WithAttributes(
		attribute.String("cycle.id", report.CycleID),
		attribute.String("cycle.trigger", trigger),
	))
	defer span.End()

	lease, err := d.cycleLocker.Acquire(ctx, cycleLockKey, d.cycleLockTTL)
	if err != nil {
		if errors.Is(err, locks.ErrLocked) {
			d.metrics.ObserveCycle(trigger, "locked", 0)
			return report, ErrCycleInProgress
		}
		span.RecordError(err)
		return report, fmt.Errorf("outreach: acquire cycle lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("cycle lock release failed", "error", err)
		}
	}()

	pending, reconciled := d.reconcile(ctx, logger)
	report.Reconciled = reconciled

	all, err := d.store.FetchLeads(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch leads")
		report.FinishedAt = d.now().UTC()
		d.metrics.ObserveCycle(trigger, "error", report.Duration().Seconds())
		logger.Error("outreach cycle aborted", "error", err)
		return report, fmt.Errorf("outreach: fetch leads: %w", err)
	}

	report.Outcomes = make([]Outcome, len(all))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range all {
		lead := all[i]
		g.Go(func() error {
			report.Outcomes[i] = d.processLead(ctx, logger, lead, pending)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = d.now().UTC()
	report.tally()
	for _, o := range report.Outcomes {
		d.metrics.ObserveLeadOutcome(string(o.Action), string(o.Result))
	}
	d.metrics.ObserveCycle(trigger, "ok", report.Duration().Seconds())
	span.SetAttributes(
		attribute.Int("cycle.applied", report.Applied),
		attribute.Int("cycle.skipped", report.Skipped),
		attribute.Int("cycle.failed", report.Failed),
		attribute.Int("cycle.unrecorded", report.Unrecorded),
	)
	logger.Info("outreach cycle finished",
		"trigger", trigger,
		"leads", len(all),
		"applied", report.Applied,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"unrecorded", report.Unrecorded,
		"reconciled", report.Reconciled,
		"duration_ms", report.Duration().Milliseconds(),
	)

	if d.recorder != nil {
		if err := d.recorder.RecordCycle(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("cycle report not recorded", "error", err)
		}
	}
	return report, nil
}

// processLead never returns an error: every failure becomes the lead's outcome.
func (d *Dispatcher) processLead(ctx context.Context, cycleLogger *logging.Logger, lead leads.Lead, pending map[string]bool) (outcome Outcome) {
	logger := cycleLogger.ForLead(lead.ID)
	outcome = Outcome{
		LeadID: lead.ID,
		Email:  lead.Identity.Email,
		From:   lead.Status,
		To:     lead.Status,
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("lead processing panicked", "panic", r)
			outcome.fail(fmt.Errorf("outreach: panic processing lead: %v", r))
		}
	}()

	if pending[lead.ID] {
		outcome.Result = ResultSkipped
		outcome.Action = ActionSkip
		outcome.Reason = ReasonSendPending
		return outcome
	}

	plan := d.router.Classify(lead)
	outcome.Action = plan.Action
	outcome.Mode = plan.Mode
	outcome.Attempt = plan.Attempt
	if plan.Skip() {
		outcome.Result = ResultSkipped
		outcome.Reason = plan.Reason
		if plan.Exhausted {
			d.metrics.ObserveRetryExhausted()
			logger.Warn("lead needs manual handling", "attempts", plan.Attempt, "max_attempts", d.router.Policy().MaxAttempts)
		}
		return outcome
	}

	lease, err := d.leadLocker.Acquire(ctx, LeadLockKey(lead.ID), d.leadLockTTL)
	if err != nil {
		if errors.Is(err, locks.ErrLocked) {
			outcome.Result = ResultSkipped
			outcome.Reason = ReasonLeadLocked
			return outcome
		}
		outcome.fail(fmt.Errorf("outreach: acquire lead lock: %w", err))
		logger.Error("lead lock failed", "error", err)
		return outcome
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("lead lock release failed", "error", err)
		}
	}()

	genCtx, cancel := context.WithTimeout(ctx, d.generationTimeout)
	started := d.now()
	decision := d.router.Generate(genCtx, lead, plan)
	cancel()
	d.metrics.ObserveGeneration(string(plan.Mode), decision.Err == nil, d.now().Sub(started).Seconds())

	if decision.Err != nil {
		logger.Warn("generation failed", "action", plan.Action, "mode", plan.Mode, "error", decision.Err)
		return d.commitFailure(ctx, logger, lead, plan, decision.Err, outcome)
	}

	receipt, err := d.sender.Send(ctx, lead.Identity, decision.Content)
	if err != nil {
		d.metrics.ObserveSend("failed")
		sendErr := asTransportError(lead.Identity.Email, err)
		logger.Warn("send failed", "action", plan.Action, "error", sendErr)
		return d.commitFailure(ctx, logger, lead, plan, sendErr, outcome)
	}
	d.metrics.ObserveSend("sent")
	outcome.Sent = true
	outcome.MessageID = receipt.MessageID

	entry := leads.OutboundMessage(d.now(), plan.Mode, decision.Content.Subject, decision.Content.Body, decision.Content.Stage)
	update := leads.LeadUpdate{
		ID:              lead.ID,
		ExpectedVersion: lead.Version,
		Status:          plan.NextStatus,
		Append:          []leads.HistoryEntry{entry},
	}
	if err := d.store.UpdateLead(ctx, update); err != nil {
		// The email is out; never report this lead as FAILED.
		journalErr := d.journal.Record(context.WithoutCancel(ctx), JournalEntry{
			LeadID:     lead.ID,
			Status:     plan.NextStatus,
			Entry:      entry,
			Receipt:    receipt,
			RecordedAt: d.now().UTC(),
		})
		if journalErr != nil {
			logger.Error("sent message could not be recorded or journaled", "error", err, "journal_error", journalErr, "message_id", receipt.MessageID)
			outcome.Result = ResultUnrecorded
			outcome.To = lead.Status
			outcome.Reason = ReasonSendUnrecorded
			outcome.Err = err
			outcome.ErrorKind = ErrorKind(err)
			outcome.Error = fmt.Sprintf("%v; journal: %v", err, journalErr)
			return outcome
		}
		logger.Warn("store write failed after send; journaled", "error", err, "message_id", receipt.MessageID)
		outcome.Result = ResultApplied
		outcome.To = plan.NextStatus
		outcome.Reason = ReasonStoreDeferred
		outcome.ErrorKind = ErrorKind(err)
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Result = ResultApplied
	outcome.To = plan.NextStatus
	logger.Info("lead advanced", "action", plan.Action, "from", lead.Status, "to", plan.NextStatus, "message_id", receipt.MessageID)
	return outcome
}

// commitFailure records FAILED plus a failure marker; conversation messages stay unchanged.
func (d *Dispatcher) commitFailure(ctx context.Context, logger *logging.Logger, lead leads.Lead, plan Plan, cause error, outcome Outcome) Outcome {
	outcome.fail(cause)
	update := leads.LeadUpdate{
		ID:              lead.ID,
		ExpectedVersion: lead.Version,
		Status:          leads.StatusFailed,
		Append:          []leads.HistoryEntry{leads.FailureMarker(d.now(), plan.Mode, cause)},
	}
	if err := d.store.UpdateLead(context.WithoutCancel(ctx), update); err != nil {
		logger.Error("failure could not be recorded", "error", err, "cause", cause)
		if errors.Is(err, leads.ErrWriteConflict) {
			outcome.Reason = ReasonWriteConflict
		}
		outcome.Error = fmt.Sprintf("%s; record failure: %v", outcome.Error, err)
		return outcome
	}
	outcome.To = leads.StatusFailed
	outcome.Reason = ReasonFailureRecorded
	return outcome
}

// reconcile commits journaled sends. It returns the lead ids that are still
// pending, which the cycle must skip, and how many entries were committed.
func (d *Dispatcher) reconcile(ctx context.Context, logger *logging.Logger) (map[string]bool, int) {
	pending := make(map[string]bool)
	entries, err := d.journal.Pending(ctx)
	if err != nil {
		logger.Error("send journal unavailable", "error", err)
		return pending, 0
	}
	reconciled := 0
	for _, entry := range entries {
		if err := d.applyJournalEntry(ctx, entry); err != nil {
			logger.Warn("journaled send still unrecorded", "lead_id", entry.LeadID, "error", err)
			pending[entry.LeadID] = true
			continue
		}
		if err := d.journal.Resolve(ctx, entry.LeadID); err != nil {
			logger.Warn("journal resolve failed", "lead_id", entry.LeadID, "error", err)
			pending[entry.LeadID] = true
			continue
		}
		reconciled++
	}
	d.metrics.SetJournalPending(len(pending))
	return pending, reconciled
}

func (d *Dispatcher) applyJournalEntry(ctx context.Context, entry JournalEntry) error {
	lead, err := d.store.GetLead(ctx, entry.LeadID)
	if err != nil {
		return err
	}
	for _, existing := range lead.History {
		if sameEntry(existing, entry.Entry) {
			return nil
		}
	}
	status := entry.Status
	if repliedSince(lead, entry.Entry.At) {
		// The prospect answered before the send was recorded.
		status = leads.StatusReplied
	}
	return d.store.UpdateLead(ctx, leads.LeadUpdate{
		ID:              lead.ID,
		ExpectedVersion: lead.Version,
		Status:          status,
		Append:          []leads.HistoryEntry{entry.Entry},
	})
}

func repliedSince(lead leads.Lead, sentAt time.Time) bool {
	for _, existing := range lead.History {
		if existing.IsMessage() && existing.Direction == leads.DirectionInbound && existing.At.After(sentAt) {
			return true
		}
	}
	return false
}

// sameEntry tolerates timestamp precision lost by the backing store.
func sameEntry(a, b leads.HistoryEntry) bool {
	if a.Kind != b.Kind || a.Direction != b.Direction || a.Text != b.Text {
		return false
	}
	delta := a.At.Sub(b.At)
	if delta < 0 {
		delta = -delta
	}
	return delta < time.Second
}
