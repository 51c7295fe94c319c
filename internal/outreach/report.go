package outreach

import (
	"context"
	"time"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
)

// Result is the per-lead cycle outcome.
type Result string

const (
	ResultApplied Result = "applied"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
	// ResultUnrecorded marks a lead whose email went out but whose send could
	// be neither stored nor journaled.
	ResultUnrecorded Result = "unrecorded"
)

// Outcome describes what one cycle did to one lead.
type Outcome struct {
	LeadID    string       `json:"lead_id"`
	Email     string       `json:"email,omitempty"`
	Result    Result       `json:"result"`
	Action    Action       `json:"action"`
	Mode      leads.Mode   `json:"mode,omitempty"`
	From      leads.Status `json:"from"`
	To        leads.Status `json:"to"`
	Attempt   int          `json:"attempt,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
	Error     string       `json:"error,omitempty"`
	Sent      bool         `json:"sent"`
	MessageID string       `json:"message_id,omitempty"`

	Err error `json:"-"`
}

func (o *Outcome) fail(err error) {
	o.Result = ResultFailed
	o.Err = err
	o.ErrorKind = ErrorKind(err)
	if err != nil {
		o.Error = err.Error()
	}
}

// Report summarizes a cycle.
type Report struct {
	CycleID    string    `json:"cycle_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Applied    int       `json:"applied"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Unrecorded int       `json:"unrecorded,omitempty"`
	Reconciled int       `json:"reconciled"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Duration is the cycle wall time.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) tally() {
	r.Applied, r.Skipped, r.Failed, r.Unrecorded = 0, 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Result {
		case ResultApplied:
			r.Applied++
		case ResultSkipped:
			r.Skipped++
		case ResultFailed:
			r.Failed++
		case ResultUnrecorded:
			r.Unrecorded++
		}
	}
}

// Recorder persists cycle reports.
type Recorder interface {
	RecordCycle(ctx context.Context, report Report) error
}
