package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/locks"
	"github.com/wolfman30/outreach-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// Reply results recorded in reports and metrics.
const (
	ResultRecorded  = "recorded"
	ResultDuplicate = "duplicate"
	ResultUnmatched = "unmatched"
	ResultFailed    = "failed"
)

// MailboxReport summarizes one mailbox scan.
type MailboxReport struct {
	Account   string `json:"account"`
	Fetched   int    `json:"fetched"`
	Recorded  int    `json:"recorded"`
	Duplicate int    `json:"duplicate"`
	Unmatched int    `json:"unmatched"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes a reply check across all mailboxes.
type Report struct {
	CheckedAt time.Time       `json:"checked_at"`
	Mailboxes []MailboxReport `json:"mailboxes"`
	Recorded  int             `json:"recorded"`
	Failed    int             `json:"failed"`
}

// Monitor matches unseen replies to leads and appends them to lead history.
type Monitor struct {
	store    leads.Store
	dialer   Dialer
	accounts []Account
	locker   locks.Locker
	lockTTL  time.Duration
	lookback time.Duration
	limit    int
	metrics  *metrics.OutreachMetrics
	logger   *logging.Logger
	now      func() time.Time
}

func NewMonitor(store leads.Store, dialer Dialer, accounts []Account, logger *logging.Logger) *Monitor {
	if store == nil {
		panic("inbox: lead store required")
	}
	if dialer == nil {
		panic("inbox: dialer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Monitor{
		store:    store,
		dialer:   dialer,
		accounts: accounts,
		locker:   locks.NewLocalLocker(),
		lockTTL:  5 * time.Minute,
		lookback: 72 * time.Hour,
		limit:    50,
		logger:   logger,
		now:      time.Now,
	}
}

// WithLeadLocker shares the per-lead lock with the dispatcher.
func (m *Monitor) WithLeadLocker(l locks.Locker, ttl time.Duration) *Monitor {
	if l != nil {
		m.locker = l
	}
	if ttl > 0 {
		m.lockTTL = ttl
	}
	return m
}

func (m *Monitor) WithWindow(lookback time.Duration, limit int) *Monitor {
	if lookback > 0 {
		m.lookback = lookback
	}
	if limit > 0 {
		m.limit = limit
	}
	return m
}

func (m *Monitor) WithMetrics(mt *metrics.OutreachMetrics) *Monitor {
	m.metrics = mt
	return m
}

func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	if now != nil {
		m.now = now
	}
	return m
}

// CheckReplies scans every mailbox. Failing to load leads is fatal; mailbox
// and message failures are isolated and reported.
func (m *Monitor) CheckReplies(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: m.now().UTC()}

	all, err := m.store.FetchLeads(ctx)
	if err != nil {
		return report, fmt.Errorf("inbox: fetch leads: %w", err)
	}
	byEmail := make(map[string]string, len(all))
	for _, lead := range all {
		if email := normalizeEmail(lead.Identity.Email); email != "" {
			if _, dup := byEmail[email]; !dup {
				byEmail[email] = lead.ID
			}
		}
	}

	for _, account := range m.accounts {
		mr := m.checkMailbox(ctx, account, byEmail)
		report.Mailboxes = append(report.Mailboxes, mr)
		report.Recorded += mr.Recorded
		report.Failed += mr.Failed
		if mr.Error != "" {
			report.Failed++
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
	m.logger.Info("reply check complete", "mailboxes", len(report.Mailboxes), "recorded", report.Recorded, "failed", report.Failed)
	return report, nil
}

func (m *Monitor) checkMailbox(ctx context.Context, account Account, byEmail map[string]string) MailboxReport {
	mr := MailboxReport{Account: account.Email}
	logger := m.logger.With("mailbox", account.Email)

	box, err := m.dialer.Dial(ctx, account)
	if err != nil {
		logger.Error("mailbox connect failed", "error", err)
		mr.Error = err.Error()
		return mr
	}
	defer func() {
		if err := box.Close(); err != nil {
			logger.Warn("mailbox close failed", "error", err)
		}
	}()

	messages, err := box.FetchUnseen(ctx, m.now().Add(-m.lookback), m.limit)
	if err != nil {
		logger.Error("mailbox fetch failed", "error", err)
		mr.Error = err.Error()
		return mr
	}
	mr.Fetched = len(messages)

	var handled []uint32
	for _, msg := range messages {
		leadID, ok := byEmail[normalizeEmail(msg.From)]
		if !ok {
			// Not a prospect; leave it unread for a human.
			mr.Unmatched++
			m.metrics.ObserveReply(ResultUnmatched)
			continue
		}
		result, err := m.recordReply(ctx, leadID, msg)
		m.metrics.ObserveReply(result)
		switch result {
		case ResultRecorded:
			mr.Recorded++
			handled = append(handled, msg.UID)
		case ResultDuplicate:
			mr.Duplicate++
			handled = append(handled, msg.UID)
		default:
			mr.Failed++
			logger.Error("reply not recorded", "lead_id", leadID, "uid", msg.UID, "error", err)
		}
	}

	if err := box.MarkSeen(ctx, handled); err != nil {
		// Unflagged replies are seen again next check and deduplicated.
		logger.Warn("mark seen failed", "error", err, "count", len(handled))
	}
	return mr
}

func (m *Monitor) recordReply(ctx context.Context, leadID string, msg Message) (string, error) {
	lease, err := m.locker.Acquire(ctx, outreach.LeadLockKey(leadID), m.lockTTL)
	if err != nil {
		return ResultFailed, fmt.Errorf("lock lead: %w", err)
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	lead, err := m.store.GetLead(ctx, leadID)
	if err != nil {
		return ResultFailed, err
	}

	dated := !msg.Date.IsZero()
	at := msg.Date
	if !dated {
		at = m.now()
	}
	entry := leads.InboundMessage(at, msg.Subject, strings.TrimSpace(msg.Text))
	if hasInbound(lead, entry, dated) {
		return ResultDuplicate, nil
	}

	status := lead.Status
	if status == leads.StatusAwaitingReply || status == leads.StatusResponded {
		status = leads.StatusReplied
	}
	err = m.store.UpdateLead(ctx, leads.LeadUpdate{
		ID:              lead.ID,
		ExpectedVersion: lead.Version,
		Status:          status,
		Append:          []leads.HistoryEntry{entry},
	})
	if err != nil {
		return ResultFailed, err
	}
	m.logger.ForLead(lead.ID).Info("reply recorded", "from", msg.From, "status", status)
	return ResultRecorded, nil
}

// hasInbound reports whether the reply is already on the lead. Undated mail is
// stamped with the check time, so it only matches on text.
func hasInbound(lead leads.Lead, entry leads.HistoryEntry, dated bool) bool {
	for _, existing := range lead.History {
		if !existing.IsMessage() || existing.Direction != leads.DirectionInbound {
			continue
		}
		if strings.TrimSpace(existing.Text) != entry.Text {
			continue
		}
		if !dated || existing.At.Equal(entry.At) {
			return true
		}
	}
	return false
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
